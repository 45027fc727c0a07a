package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayloadKind identifies the primary non-text payload of a message.
type PayloadKind string

const (
	PayloadNone  PayloadKind = ""
	PayloadText  PayloadKind = "text" // reply previews only; a live message with text has PayloadNone
	PayloadMedia PayloadKind = "media"
	PayloadPoll  PayloadKind = "poll"
	PayloadTable PayloadKind = "table"
)

// Payload is the tagged variant for a message's foreign payload reference.
// A message carries at most one payload kind in addition to its text.
type Payload struct {
	Kind PayloadKind
	Ref  int64
}

// IsZero reports whether the message carries no payload reference.
func (p Payload) IsZero() bool {
	return p.Kind == PayloadNone
}

// DeliveryStatus is derived from message state, never stored.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Message is a single chat message. ID is server-assigned; a message created
// optimistically on the client carries only TempID until the send is
// confirmed. Exactly one of the two identifies a message at any time.
type Message struct {
	ID         int64   `json:"id,omitempty"`
	TempID     string  `json:"temp_id,omitempty"`
	Room       string  `json:"room"`
	SenderID   int64   `json:"sender_id"`
	SenderName string  `json:"sender_name,omitempty"`
	Text       string  `json:"text,omitempty"`
	Payload    Payload `json:"-"`

	// Denormalized reply preview, copied from the replied-to message at
	// send time so rendering never needs a second lookup.
	ReplyToID       int64       `json:"reply_to_id,omitempty"`
	ReplySenderName string      `json:"reply_sender_name,omitempty"`
	ReplyText       string      `json:"reply_text,omitempty"`
	ReplyKind       PayloadKind `json:"reply_kind,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	IsEdited  bool       `json:"is_edited,omitempty"`
	HasSeen   bool       `json:"has_seen,omitempty"`
}

// Pending reports whether the message is still awaiting server confirmation.
func (m *Message) Pending() bool {
	return m.ID == 0 && m.TempID != ""
}

// Status derives the delivery status from message state.
func (m *Message) Status() DeliveryStatus {
	switch {
	case m.Pending():
		return StatusSending
	case m.HasSeen:
		return StatusRead
	default:
		return StatusDelivered
	}
}

// messageWire is the JSON shape of a Message. The payload union is flattened
// into the optional reference fields of the REST/push contract.
type messageWire struct {
	ID              int64       `json:"id,omitempty"`
	TempID          string      `json:"temp_id,omitempty"`
	Room            string      `json:"room"`
	SenderID        int64       `json:"sender_id"`
	SenderName      string      `json:"sender_name,omitempty"`
	Text            string      `json:"text,omitempty"`
	MediaFilesID    int64       `json:"media_files_id,omitempty"`
	PollID          int64       `json:"poll_id,omitempty"`
	TableID         int64       `json:"table_id,omitempty"`
	ReplyToID       int64       `json:"reply_to_id,omitempty"`
	ReplySenderName string      `json:"reply_sender_name,omitempty"`
	ReplyText       string      `json:"reply_text,omitempty"`
	ReplyKind       PayloadKind `json:"reply_kind,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	EditedAt        *time.Time  `json:"edited_at,omitempty"`
	IsEdited        bool        `json:"is_edited,omitempty"`
	HasSeen         bool        `json:"has_seen,omitempty"`
}

// MarshalJSON flattens the payload variant into the wire fields.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		ID:              m.ID,
		TempID:          m.TempID,
		Room:            m.Room,
		SenderID:        m.SenderID,
		SenderName:      m.SenderName,
		Text:            m.Text,
		ReplyToID:       m.ReplyToID,
		ReplySenderName: m.ReplySenderName,
		ReplyText:       m.ReplyText,
		ReplyKind:       m.ReplyKind,
		CreatedAt:       m.CreatedAt,
		EditedAt:        m.EditedAt,
		IsEdited:        m.IsEdited,
		HasSeen:         m.HasSeen,
	}
	switch m.Payload.Kind {
	case PayloadMedia:
		w.MediaFilesID = m.Payload.Ref
	case PayloadPoll:
		w.PollID = m.Payload.Ref
	case PayloadTable:
		w.TableID = m.Payload.Ref
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the payload variant from the wire fields,
// rejecting messages that claim more than one payload kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := payloadFromRefs(w.MediaFilesID, w.PollID, w.TableID)
	if err != nil {
		return err
	}
	*m = Message{
		ID:              w.ID,
		TempID:          w.TempID,
		Room:            w.Room,
		SenderID:        w.SenderID,
		SenderName:      w.SenderName,
		Text:            w.Text,
		Payload:         payload,
		ReplyToID:       w.ReplyToID,
		ReplySenderName: w.ReplySenderName,
		ReplyText:       w.ReplyText,
		ReplyKind:       w.ReplyKind,
		CreatedAt:       w.CreatedAt,
		EditedAt:        w.EditedAt,
		IsEdited:        w.IsEdited,
		HasSeen:         w.HasSeen,
	}
	return nil
}

func payloadFromRefs(mediaID, pollID, tableID int64) (Payload, error) {
	var p Payload
	set := 0
	if mediaID != 0 {
		p = Payload{Kind: PayloadMedia, Ref: mediaID}
		set++
	}
	if pollID != 0 {
		p = Payload{Kind: PayloadPoll, Ref: pollID}
		set++
	}
	if tableID != 0 {
		p = Payload{Kind: PayloadTable, Ref: tableID}
		set++
	}
	if set > 1 {
		return Payload{}, ErrInvalidPayload
	}
	return p, nil
}

// NewTempID generates a client-side temporary message token. The prefix lets
// reconciliation find every optimistic entry with a single check.
func NewTempID() string {
	return fmt.Sprintf("temp-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// IsTempID reports whether an identifier token is a client temp token.
func IsTempID(token string) bool {
	return strings.HasPrefix(token, "temp-")
}

// SendMessageRequest is the REST body for creating a message.
type SendMessageRequest struct {
	Text           string     `json:"message_text,omitempty"`
	MediaFilesID   int64      `json:"media_files_id,omitempty"`
	PollID         int64      `json:"poll_id,omitempty"`
	TableID        int64      `json:"table_id,omitempty"`
	ReplyMessageID int64      `json:"reply_message_id,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
}

// Payload resolves the request's payload variant, erroring when more than
// one reference is set.
func (r *SendMessageRequest) Payload() (Payload, error) {
	return payloadFromRefs(r.MediaFilesID, r.PollID, r.TableID)
}

// Empty reports whether the request carries neither text nor a payload.
func (r *SendMessageRequest) Empty() bool {
	return strings.TrimSpace(r.Text) == "" &&
		r.MediaFilesID == 0 && r.PollID == 0 && r.TableID == 0
}

// EditMessageRequest is the REST body for editing a message's text.
type EditMessageRequest struct {
	Text string `json:"message_text"`
}

// DecodeMessages parses a send-message response, which may be a single
// message object or an array of them (multi-payload sends).
func DecodeMessages(data []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Message
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one Message
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []Message{one}, nil
}
