package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"chatsync/models"
)

// SessionConfig identifies the room being opened and the local user.
type SessionConfig struct {
	Room        string
	UserID      int64
	DisplayName string
}

// RoomSession owns the authoritative in-memory message list for one open
// room. Messages render in append order; the engine does not reorder the
// REST-confirm and push-receive paths by timestamp.
//
// Correctness over the two delivery channels rests on three rules:
//   - every server-assigned ID observed in this room session is recorded, and
//     push deliveries of known IDs are dropped (duplicate suppression),
//   - push events whose sender is the local user are dropped (the sender
//     already holds the optimistic or confirmed entry),
//   - reconciliation replaces rather than merges: all temp entries are
//     filtered out and the confirmed entries appended in one step, so no
//     interleaving leaves a temp entry and its confirmed counterpart
//     coexisting.
type RoomSession struct {
	client *Client
	conn   *Conn
	cfg    SessionConfig

	mu       sync.Mutex
	messages []models.Message
	seen     map[int64]struct{}
	sending  bool
	draft    string
	closed   bool

	presence *PresenceTracker

	subs    map[int]func()
	nextSub int

	teardown []func()
}

// OpenRoom connects (or reuses) the push channel, seeds local state from the
// room-details endpoint, registers the room-scoped listeners, and joins the
// room. Close is the required counterpart — it removes every listener so
// repeated open/close cycles never accumulate duplicate handlers.
func (c *Client) OpenRoom(ctx context.Context, cfg SessionConfig) (*RoomSession, error) {
	if cfg.Room == "" {
		return nil, fmt.Errorf("client: room ID is required")
	}

	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Identify(cfg.UserID, cfg.DisplayName); err != nil {
		return nil, err
	}

	details, err := c.RoomDetails(ctx, cfg.Room)
	if err != nil {
		return nil, fmt.Errorf("client: seeding room %s: %w", cfg.Room, err)
	}

	s := &RoomSession{
		client:   c,
		conn:     conn,
		cfg:      cfg,
		messages: append([]models.Message(nil), details.Messages...),
		seen:     make(map[int64]struct{}, len(details.Messages)),
		presence: newPresenceTracker(cfg.Room, details.Members),
		subs:     make(map[int]func()),
	}
	for _, m := range details.Messages {
		if m.ID != 0 {
			s.seen[m.ID] = struct{}{}
		}
	}

	s.registerListeners(conn)

	if err := conn.JoinRoom(cfg.Room, cfg.UserID, cfg.DisplayName); err != nil {
		s.removeListeners()
		return nil, err
	}
	return s, nil
}

// registerListeners wires the session's handlers to the connection and
// records the disposers for teardown.
func (s *RoomSession) registerListeners(conn *Conn) {
	s.teardown = []func(){
		conn.OnNewMessage(s.handleNewMessage),
		conn.OnOnlineUsers(s.presence.handleOnlineUsers),
		conn.OnRoomMembers(s.presence.handleRoomMembers),
		conn.OnUserStatus(s.presence.handleUserStatus),
		conn.OnMessagesSeen(s.handleMessagesSeen),
		conn.OnMessageDeleted(s.handleMessageDeleted),
		conn.OnMessageEdited(s.handleMessageEdited),
	}
}

// Close removes the session's listeners and leaves the room. The underlying
// connection stays open for other rooms and global listeners.
func (s *RoomSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.removeListeners()
	return s.conn.LeaveRoom(s.cfg.Room, s.cfg.UserID)
}

func (s *RoomSession) removeListeners() {
	for _, dispose := range s.teardown {
		dispose()
	}
	s.teardown = nil
}

// Rejoin re-establishes the room scope after a caller-driven reconnect. The
// listeners are re-registered against the (possibly new) connection.
func (s *RoomSession) Rejoin(ctx context.Context) error {
	conn, err := s.client.Connect(ctx)
	if err != nil {
		return err
	}
	s.removeListeners()
	s.conn = conn
	s.registerListeners(conn)
	if err := conn.Identify(s.cfg.UserID, s.cfg.DisplayName); err != nil {
		return err
	}
	return conn.JoinRoom(s.cfg.Room, s.cfg.UserID, s.cfg.DisplayName)
}

// Presence exposes the room's presence tracker.
func (s *RoomSession) Presence() *PresenceTracker {
	return s.presence
}

// Messages returns a snapshot of the rendered list.
func (s *RoomSession) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// Draft holds compose text restored after a failed send, so the user can
// retry without retyping.
func (s *RoomSession) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft stores in-progress compose text.
func (s *RoomSession) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// OnChange subscribes to message-list changes; returns the disposer.
func (s *RoomSession) OnChange(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *RoomSession) notify() {
	s.mu.Lock()
	snapshot := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}

// Send performs one optimistic send:
//
//  1. validate (text or a payload reference required; one send in flight
//     per composer),
//  2. insert a temp-ID entry so the UI reflects the action immediately,
//  3. POST the create call,
//  4. on success, atomically replace every temp entry with the confirmed
//     messages (sender name attached locally — the server omits it) and
//     relay each one over the push channel for the other room members,
//  5. on failure, drop the temp entry and restore the draft.
func (s *RoomSession) Send(ctx context.Context, req models.SendMessageRequest) error {
	payload, err := req.Payload()
	if err != nil {
		return err
	}
	if req.Empty() {
		return models.ErrEmptyMessage
	}

	var reply models.Message
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return models.ErrSendInFlight
	}
	s.sending = true
	if req.ReplyMessageID != 0 {
		for _, m := range s.messages {
			if m.ID == req.ReplyMessageID {
				reply = m
				break
			}
		}
	}
	temp := models.Message{
		TempID:     models.NewTempID(),
		Room:       s.cfg.Room,
		SenderID:   s.cfg.UserID,
		SenderName: s.cfg.DisplayName,
		Text:       req.Text,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	if reply.ID != 0 {
		temp.ReplyToID = reply.ID
		temp.ReplySenderName = reply.SenderName
		temp.ReplyText = reply.Text
		temp.ReplyKind = replyKind(reply)
	}
	s.messages = append(s.messages, temp)
	s.draft = ""
	s.mu.Unlock()
	s.notify()

	confirmed, sendErr := s.client.SendMessage(ctx, s.cfg.Room, req)

	s.mu.Lock()
	s.sending = false
	if sendErr != nil {
		s.messages = dropPending(s.messages)
		s.draft = req.Text
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("client: send failed: %w", sendErr)
	}

	for i := range confirmed {
		confirmed[i].SenderName = s.cfg.DisplayName
		if confirmed[i].ID != 0 {
			s.seen[confirmed[i].ID] = struct{}{}
		}
	}
	// Replace, don't merge: filtering every temp entry before appending the
	// confirmed ones avoids partial-duplicate states when several temp
	// entries existed concurrently.
	s.messages = append(dropPending(s.messages), confirmed...)
	s.mu.Unlock()
	s.notify()

	for _, m := range confirmed {
		if err := s.conn.Relay(m); err != nil {
			log.Printf("relay of message %d failed: %v", m.ID, err)
		}
	}
	return nil
}

func dropPending(list []models.Message) []models.Message {
	kept := list[:0]
	for _, m := range list {
		if !m.Pending() {
			kept = append(kept, m)
		}
	}
	return kept
}

func replyKind(m models.Message) models.PayloadKind {
	if !m.Payload.IsZero() {
		return m.Payload.Kind
	}
	return models.PayloadText
}

// handleNewMessage is the push-receive path: room-scope guard, duplicate
// suppression against already-seen IDs, self-echo suppression, then append.
func (s *RoomSession) handleNewMessage(ev models.WSEvent) {
	if ev.Room != s.cfg.Room || ev.Message == nil {
		return
	}
	msg := *ev.Message

	s.mu.Lock()
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	if msg.SenderID == s.cfg.UserID {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// MarkSeen reports that everything currently in the list has been read and
// lets the server fan the watermark out to the other members.
func (s *RoomSession) MarkSeen() error {
	now := time.Now().UnixMilli()
	return s.conn.MarkSeen(s.cfg.Room, s.cfg.UserID, now)
}

// handleMessagesSeen marks the local user's own messages as read up to the
// reporter's watermark.
func (s *RoomSession) handleMessagesSeen(ev models.WSEvent) {
	if ev.Room != s.cfg.Room || ev.UserID == s.cfg.UserID {
		return
	}
	watermark := time.UnixMilli(ev.SeenBefore)
	changed := false
	s.mu.Lock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == s.cfg.UserID && !m.HasSeen && !m.CreatedAt.After(watermark) {
			m.HasSeen = true
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Delete removes one of the local user's messages on the server and from the
// list. Other members learn of it via the messageDeleted push event.
func (s *RoomSession) Delete(ctx context.Context, messageID int64) error {
	if err := s.client.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.removeLocal(messageID)
	return nil
}

func (s *RoomSession) handleMessageDeleted(ev models.WSEvent) {
	if ev.Room != s.cfg.Room || ev.MessageID == 0 {
		return
	}
	s.removeLocal(ev.MessageID)
}

// removeLocal is idempotent: removing an already-removed ID changes nothing,
// so the REST path and the push echo cannot conflict.
func (s *RoomSession) removeLocal(messageID int64) {
	changed := false
	s.mu.Lock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID == messageID {
			changed = true
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Edit updates a message's text. Only the edit fields of the list entry
// change; everything else stays as rendered.
func (s *RoomSession) Edit(ctx context.Context, messageID int64, text string) error {
	updated, err := s.client.EditMessage(ctx, messageID, text)
	if err != nil {
		return err
	}
	s.applyEdit(*updated)
	return nil
}

func (s *RoomSession) handleMessageEdited(ev models.WSEvent) {
	if ev.Room != s.cfg.Room || ev.Message == nil {
		return
	}
	s.applyEdit(*ev.Message)
}

func (s *RoomSession) applyEdit(updated models.Message) {
	changed := false
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == updated.ID {
			s.messages[i].Text = updated.Text
			s.messages[i].IsEdited = true
			s.messages[i].EditedAt = updated.EditedAt
			changed = true
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}
