package models

import "time"

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember is one roster entry. IsOnline is a derived merge of the room's
// online set into the roster — never persisted.
type RoomMember struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
	IsOnline bool   `json:"is_online"`
}

// RoomDetails seeds a client session when a room is opened.
type RoomDetails struct {
	Room     Room         `json:"room"`
	Members  []RoomMember `json:"members"`
	Messages []Message    `json:"messages"`
}

type CreateRoomRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids"`
}

type RoomResponse struct {
	RoomID string `json:"room_id"`
	IsNew  bool   `json:"is_new"`
}
