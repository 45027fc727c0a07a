package services

import (
	"context"
	"errors"
	"time"

	"chatsync/internal/db"
	"chatsync/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ChatService struct{}

func NewChatService() *ChatService {
	return &ChatService{}
}

// CreateRoom creates a room with the given members; the creator is admin.
func (s *ChatService) CreateRoom(ctx context.Context, creatorID int64, req models.CreateRoomRequest) (*models.RoomResponse, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	roomID := uuid.New().String()
	_, err = tx.Exec(ctx, `INSERT INTO rooms (id, name, type) VALUES ($1, $2, 'group')`, roomID, req.Name)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO room_members (room_id, user_id, is_admin) VALUES ($1, $2, TRUE)`, roomID, creatorID)
	if err != nil {
		return nil, err
	}
	for _, memberID := range req.MemberIDs {
		if memberID == creatorID {
			continue
		}
		_, err = tx.Exec(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, memberID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.RoomResponse{RoomID: roomID, IsNew: true}, nil
}

// RoomDetails returns the room, its member roster, and the most recent
// messages (oldest first), which seeds a client session on room open.
func (s *ChatService) RoomDetails(ctx context.Context, roomID string, limit int) (*models.RoomDetails, error) {
	var details models.RoomDetails
	err := db.Pool.QueryRow(ctx, `SELECT id, name, type, created_at FROM rooms WHERE id = $1`, roomID).
		Scan(&details.Room.ID, &details.Room.Name, &details.Room.Type, &details.Room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	members, err := s.RoomMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	details.Members = members

	messages, err := s.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	details.Messages = messages
	return &details, nil
}

// RoomMembers returns the roster. Online flags are left false here — the
// websocket layer merges live state in before sending.
func (s *ChatService) RoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	query := `
		SELECT u.id, u.full_name, m.is_admin
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY u.full_name, u.id
	`
	rows, err := db.Pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.RoomMember{}
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.UserID, &m.FullName, &m.IsAdmin); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RoomParticipantIDs returns just the member IDs, for notification fan-out.
func (s *ChatService) RoomParticipantIDs(ctx context.Context, roomID string) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT user_id FROM room_members WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsRoomMember reports whether the user belongs to the room.
func (s *ChatService) IsRoomMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&exists)
	return exists, err
}

const messageColumns = `id, room_id, sender_id, text_content, media_files_id, poll_id, table_id,
	reply_to_id, reply_sender_name, reply_text, reply_kind, has_seen, is_edited, edited_at, created_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m                      models.Message
		mediaID, pollID, tblID *int64
		replyToID              *int64
	)
	err := row.Scan(&m.ID, &m.Room, &m.SenderID, &m.Text, &mediaID, &pollID, &tblID,
		&replyToID, &m.ReplySenderName, &m.ReplyText, &m.ReplyKind, &m.HasSeen, &m.IsEdited, &m.EditedAt, &m.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	switch {
	case mediaID != nil:
		m.Payload = models.Payload{Kind: models.PayloadMedia, Ref: *mediaID}
	case pollID != nil:
		m.Payload = models.Payload{Kind: models.PayloadPoll, Ref: *pollID}
	case tblID != nil:
		m.Payload = models.Payload{Kind: models.PayloadTable, Ref: *tblID}
	}
	if replyToID != nil {
		m.ReplyToID = *replyToID
	}
	return m, nil
}

// SaveMessage persists a message and fills in its ID and creation time.
func (s *ChatService) SaveMessage(ctx context.Context, msg *models.Message, scheduledAt *time.Time) error {
	var mediaID, pollID, tblID, replyToID *int64
	switch msg.Payload.Kind {
	case models.PayloadMedia:
		mediaID = &msg.Payload.Ref
	case models.PayloadPoll:
		pollID = &msg.Payload.Ref
	case models.PayloadTable:
		tblID = &msg.Payload.Ref
	}
	if msg.ReplyToID != 0 {
		replyToID = &msg.ReplyToID
	}

	query := `INSERT INTO messages
		(room_id, sender_id, text_content, media_files_id, poll_id, table_id,
		 reply_to_id, reply_sender_name, reply_text, reply_kind, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	return db.Pool.QueryRow(ctx, query,
		msg.Room, msg.SenderID, msg.Text, mediaID, pollID, tblID,
		replyToID, msg.ReplySenderName, msg.ReplyText, string(msg.ReplyKind), scheduledAt).
		Scan(&msg.ID, &msg.CreatedAt)
}

// RecentMessages returns the latest messages for a room, oldest first.
func (s *ChatService) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := db.Pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	// Attach sender names for history; only the send-response path omits them.
	if err := s.attachSenderNames(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *ChatService) attachSenderNames(ctx context.Context, messages []models.Message) error {
	ids := make(map[int64]struct{})
	for _, m := range messages {
		ids[m.SenderID] = struct{}{}
	}
	if len(ids) == 0 {
		return nil
	}
	idList := make([]int64, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	rows, err := db.Pool.Query(ctx, `SELECT id, full_name FROM users WHERE id = ANY($1)`, idList)
	if err != nil {
		return err
	}
	defer rows.Close()

	names := make(map[int64]string, len(idList))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range messages {
		messages[i].SenderName = names[messages[i].SenderID]
	}
	return nil
}

// MessageByID fetches one message.
func (s *ChatService) MessageByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	m, err := scanMessage(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage removes a message; only the sender may do so.
func (s *ChatService) DeleteMessage(ctx context.Context, id, userID int64) (*models.Message, error) {
	msg, err := s.MessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, models.ErrNotSender
	}
	_, err = db.Pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return msg, err
}

// EditMessage updates a message's text; only the sender may do so.
func (s *ChatService) EditMessage(ctx context.Context, id, userID int64, text string) (*models.Message, error) {
	query := `UPDATE messages SET text_content = $1, is_edited = TRUE, edited_at = now()
		WHERE id = $2 AND sender_id = $3
		RETURNING ` + messageColumns
	m, err := scanMessage(db.Pool.QueryRow(ctx, query, text, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the message doesn't exist or the caller isn't its sender.
		if _, lookupErr := s.MessageByID(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, models.ErrNotSender
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMessagesSeen records the reader's watermark: every message in the room
// from other senders at or before the timestamp becomes seen. Returns the
// number of rows updated.
func (s *ChatService) MarkMessagesSeen(ctx context.Context, roomID string, readerID int64, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE messages SET has_seen = TRUE
		 WHERE room_id = $1 AND sender_id <> $2 AND created_at <= $3 AND has_seen = FALSE`,
		roomID, readerID, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
