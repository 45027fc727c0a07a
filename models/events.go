package models

// EventType names a push-channel event.
type EventType string

// Client -> server events.
const (
	EventIdentify     EventType = "identify"
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventRelayMessage EventType = "relayMessage"
	EventSeen         EventType = "seen"
)

// Server -> client events.
const (
	EventNewMessage     EventType = "newMessage"
	EventOnlineUsers    EventType = "onlineUsers"
	EventRoomMembers    EventType = "roomMembers"
	EventUserStatus     EventType = "userOnlineStatusUpdate"
	EventMessagesSeen   EventType = "messagesSeen"
	EventMessageDeleted EventType = "messageDeleted"
	EventMessageEdited  EventType = "messageEdited"
	EventNotification   EventType = "notification"
	EventError          EventType = "error"
)

// WSEvent is the websocket envelope. Fields are populated per event type;
// everything else stays empty on the wire.
type WSEvent struct {
	Event    EventType `json:"event"`
	Room     string    `json:"room,omitempty"`
	UserID   int64     `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`

	// userOnlineStatusUpdate
	Online *bool `json:"online,omitempty"`

	// onlineUsers / roomMembers
	UserIDs []int64      `json:"user_ids,omitempty"`
	Members []RoomMember `json:"members,omitempty"`

	// newMessage / relayMessage / messageEdited
	Message *Message `json:"message,omitempty"`

	// messageDeleted
	MessageID int64 `json:"message_id,omitempty"`

	// seen / messagesSeen: unix-millisecond watermark; everything at or
	// before it counts as read by UserID
	SeenBefore int64 `json:"seen_before,omitempty"`

	// notification
	Notification *Notification `json:"notification,omitempty"`

	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notification is the cross-room new-message ping delivered to room members
// who are online but not currently viewing the room.
type Notification struct {
	Room       string `json:"room"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
