package handlers

import (
	"context"
	"time"

	"chatsync/internal/utils"
	"chatsync/models"
)

// handleIdentify binds the connection to its user. When this is the user's
// first live connection, everyone learns they came online.
func (h *WS) handleIdentify(connID string, userID int64, username string, client *wsClient) {
	if first := h.Manager.Register(connID, userID, username, client); first {
		online := true
		h.Manager.BroadcastToAll(models.WSEvent{
			Event:  models.EventUserStatus,
			UserID: userID,
			Online: &online,
		})
	}
}

func (h *WS) handleJoin(currentRoom *string, room, connID string) {
	if room == "" {
		return
	}

	// A connection has at most one room open.
	if *currentRoom != "" && *currentRoom != room {
		h.Manager.Leave(*currentRoom, connID)
		h.broadcastOnlineUsers(*currentRoom)
	}

	*currentRoom = room
	h.Manager.Join(room, connID)

	h.broadcastOnlineUsers(room)
	h.broadcastRoomMembers(room)
}

func (h *WS) handleLeave(currentRoom *string, connID string) {
	if *currentRoom == "" {
		return
	}
	room := *currentRoom
	*currentRoom = ""
	h.Manager.Leave(room, connID)
	h.broadcastOnlineUsers(room)
}

// handleRelay fans a just-confirmed message out to the room. The sender's
// own client receives the echo too and drops it by ID.
func (h *WS) handleRelay(ev models.WSEvent, userID int64, username string, client *wsClient) {
	if ev.Room == "" || ev.Message == nil || ev.Message.ID == 0 {
		return
	}
	// The relay must describe a message this user actually sent.
	if ev.Message.SenderID != userID {
		client.sendJSON(models.WSEvent{Event: models.EventError, Error: "relay sender mismatch"})
		return
	}

	msg := *ev.Message
	h.Manager.Broadcast(ev.Room, models.WSEvent{
		Event:     models.EventNewMessage,
		Room:      ev.Room,
		Message:   &msg,
		Timestamp: time.Now().UnixMilli(),
	}, "")

	go h.notifyNewMessage(ev.Room, userID, username, msg.Text, msg.CreatedAt.UnixMilli())
}

func (h *WS) handleSeen(ev models.WSEvent, userID int64, username string, client *wsClient) {
	if ev.Room == "" || ev.SeenBefore == 0 {
		return
	}

	before := time.UnixMilli(ev.SeenBefore)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.Chat.MarkMessagesSeen(ctx, ev.Room, userID, before); err != nil {
		utils.LogError(err, "MarkMessagesSeen")
		client.sendJSON(models.WSEvent{Event: models.EventError, Room: ev.Room, Error: err.Error()})
		return
	}

	h.Manager.Broadcast(ev.Room, models.WSEvent{
		Event:      models.EventMessagesSeen,
		Room:       ev.Room,
		UserID:     userID,
		Username:   username,
		SeenBefore: ev.SeenBefore,
		Timestamp:  time.Now().UnixMilli(),
	}, "")
}

// broadcastOnlineUsers pushes the room's current online set.
func (h *WS) broadcastOnlineUsers(room string) {
	h.Manager.Broadcast(room, models.WSEvent{
		Event:     models.EventOnlineUsers,
		Room:      room,
		UserIDs:   h.Manager.OnlineUsersInRoom(room),
		Timestamp: time.Now().UnixMilli(),
	}, "")
}

// broadcastRoomMembers pushes the roster with live online flags merged in.
func (h *WS) broadcastRoomMembers(room string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := h.Chat.RoomMembers(ctx, room)
	if err != nil {
		utils.LogError(err, "RoomMembers")
		return
	}
	for i := range members {
		members[i].IsOnline = h.Manager.IsUserOnline(members[i].UserID)
	}

	h.Manager.Broadcast(room, models.WSEvent{
		Event:     models.EventRoomMembers,
		Room:      room,
		Members:   members,
		Timestamp: time.Now().UnixMilli(),
	}, "")
}

// notifyNewMessage pings room members who are online but not currently
// viewing the room, so list screens can bump unread badges.
func (h *WS) notifyNewMessage(room string, senderID int64, senderName, text string, timestamp int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	participants, err := h.Chat.RoomParticipantIDs(ctx, room)
	if err != nil {
		utils.LogError(err, "RoomParticipantIDs")
		return
	}

	notification := models.WSEvent{
		Event: models.EventNotification,
		Room:  room,
		Notification: &models.Notification{
			Room:       room,
			SenderID:   senderID,
			SenderName: senderName,
			Text:       text,
			Timestamp:  timestamp,
		},
	}

	for _, participantID := range participants {
		if participantID == senderID {
			continue
		}
		if !h.Manager.IsUserOnline(participantID) {
			continue
		}
		if h.Manager.IsUserInRoom(participantID, room) {
			// Already in the room; the newMessage broadcast covers them.
			continue
		}
		h.Manager.SendToUser(participantID, notification)
	}
}
