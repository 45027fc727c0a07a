package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chatsync/models"
)

func TestOpenRoomSeedsState(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ID != 11 {
		t.Fatalf("seed messages = %+v", msgs)
	}
	if !s.Presence().IsOnline(1) || s.Presence().IsOnline(2) {
		t.Fatal("seed presence flags not applied")
	}

	if ev := fs.nextEvent(t); ev.Event != models.EventIdentify || ev.UserID != 1 {
		t.Fatalf("first client event = %+v, want identify", ev)
	}
	if ev := fs.nextEvent(t); ev.Event != models.EventJoin || ev.Room != "room-1" {
		t.Fatalf("second client event = %+v, want join", ev)
	}
}

func TestSendEmptyMessageSkipsNetwork(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	err := s.Send(context.Background(), models.SendMessageRequest{Text: "   "})
	if !errors.Is(err, models.ErrEmptyMessage) {
		t.Fatalf("want ErrEmptyMessage, got %v", err)
	}
	if n := atomic.LoadInt32(&fs.posts); n != 0 {
		t.Fatalf("empty send reached the network (%d posts)", n)
	}
	if len(s.Messages()) != 1 {
		t.Fatal("empty send altered the message list")
	}
}

func TestSendOptimisticReconciliation(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	gate := make(chan struct{})
	fs.mu.Lock()
	fs.sendGate = gate
	fs.sendResp = []models.Message{
		{ID: 101, Room: "room-1", SenderID: 1, Text: "status", CreatedAt: time.Now()},
		{ID: 102, Room: "room-1", SenderID: 1, Payload: models.Payload{Kind: models.PayloadPoll, Ref: 9}, CreatedAt: time.Now()},
	}
	fs.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), models.SendMessageRequest{Text: "status", PollID: 9})
	}()

	// The optimistic entry is visible while the request is in flight.
	waitFor(t, func() bool {
		for _, m := range s.Messages() {
			if m.Pending() {
				return true
			}
		}
		return false
	}, "no optimistic entry appeared")

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("message count = %d, want seed + two confirmed", len(msgs))
	}
	for _, m := range msgs {
		if m.Pending() {
			t.Fatalf("temp entry survived reconciliation: %+v", m)
		}
	}
	last := msgs[len(msgs)-1]
	if last.ID != 102 || last.SenderName != "Ann" {
		t.Fatalf("confirmed tail = %+v, want ID 102 with local sender name", last)
	}

	// Both confirmed messages get relayed over the push channel. Skip the
	// identify/join handshake events still sitting in the channel.
	for _, wantID := range []int64{101, 102} {
		ev := fs.nextEvent(t)
		for ev.Event == models.EventIdentify || ev.Event == models.EventJoin {
			ev = fs.nextEvent(t)
		}
		if ev.Event != models.EventRelayMessage || ev.Message == nil || ev.Message.ID != wantID {
			t.Fatalf("relay event = %+v, want message %d", ev, wantID)
		}
	}
}

func TestSendFailureRestoresDraft(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	fs.mu.Lock()
	fs.sendCode = 500
	fs.mu.Unlock()

	err := s.Send(context.Background(), models.SendMessageRequest{Text: "doomed"})
	if err == nil {
		t.Fatal("send should have failed")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("want wrapped APIError 500, got %v", err)
	}
	for _, m := range s.Messages() {
		if m.Pending() {
			t.Fatal("temp entry survived a failed send")
		}
	}
	if s.Draft() != "doomed" {
		t.Fatalf("draft = %q, want the failed text restored", s.Draft())
	}
}

func TestSendWhileInFlightRejected(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	gate := make(chan struct{})
	fs.mu.Lock()
	fs.sendGate = gate
	fs.sendResp = []models.Message{{ID: 101, Room: "room-1", SenderID: 1, Text: "first", CreatedAt: time.Now()}}
	fs.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), models.SendMessageRequest{Text: "first"})
	}()
	waitFor(t, func() bool {
		for _, m := range s.Messages() {
			if m.Pending() {
				return true
			}
		}
		return false
	}, "first send never became pending")

	if err := s.Send(context.Background(), models.SendMessageRequest{Text: "second"}); !errors.Is(err, models.ErrSendInFlight) {
		t.Fatalf("want ErrSendInFlight, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
}

func TestPushAppendAndDuplicateSuppression(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	incoming := models.Message{ID: 200, Room: "room-1", SenderID: 2, SenderName: "Bob", Text: "hi", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &incoming})
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "push message never appended")

	// The same ID delivered again (redundant broadcast) must not duplicate.
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &incoming})
	// A distinguishable follow-up proves the duplicate was processed and dropped.
	follow := models.Message{ID: 201, Room: "room-1", SenderID: 2, Text: "again", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &follow})
	waitFor(t, func() bool { return len(s.Messages()) == 3 }, "follow-up message never appended")

	count := 0
	for _, m := range s.Messages() {
		if m.ID == 200 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("message 200 appears %d times", count)
	}
}

func TestPushSelfEchoSuppressed(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	// An echo of the local user's own send with an ID the session has not
	// recorded yet. The sender check alone must drop it.
	echo := models.Message{ID: 300, Room: "room-1", SenderID: 1, Text: "own", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &echo})

	other := models.Message{ID: 301, Room: "room-1", SenderID: 2, Text: "peer", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &other})
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "peer message never appended")

	for _, m := range s.Messages() {
		if m.ID == 300 {
			t.Fatal("self echo was appended")
		}
	}
}

func TestPushOtherRoomIgnored(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	stray := models.Message{ID: 400, Room: "elsewhere", SenderID: 2, Text: "stray", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "elsewhere", Message: &stray})
	local := models.Message{ID: 401, Room: "room-1", SenderID: 2, Text: "local", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &local})
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "local message never appended")

	for _, m := range s.Messages() {
		if m.Room != "room-1" {
			t.Fatalf("cross-room message leaked in: %+v", m)
		}
	}
}

func TestSeenWatermarkMarksOwnMessages(t *testing.T) {
	fs := newFakeServer(t)
	fs.details.Messages = []models.Message{
		{ID: 10, Room: "room-1", SenderID: 1, Text: "mine", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: 11, Room: "room-1", SenderID: 2, Text: "theirs", CreatedAt: time.Now().Add(-30 * time.Second)},
	}
	_, s := fs.openRoom(t)

	fs.push(models.WSEvent{
		Event:      models.EventMessagesSeen,
		Room:       "room-1",
		UserID:     2,
		SeenBefore: time.Now().UnixMilli(),
	})

	waitFor(t, func() bool {
		for _, m := range s.Messages() {
			if m.ID == 10 && m.HasSeen {
				return true
			}
		}
		return false
	}, "own message never marked read")

	for _, m := range s.Messages() {
		if m.ID == 11 && m.HasSeen {
			t.Fatal("another sender's message marked read by their own watermark")
		}
		if m.ID == 10 && m.Status() != models.StatusRead {
			t.Fatalf("status = %s, want read", m.Status())
		}
	}
}

func TestMessageDeletedPush(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	fs.push(models.WSEvent{Event: models.EventMessageDeleted, Room: "room-1", MessageID: 11})
	waitFor(t, func() bool { return len(s.Messages()) == 0 }, "deleted message never removed")

	// Deleting an absent ID is a no-op.
	fs.push(models.WSEvent{Event: models.EventMessageDeleted, Room: "room-1", MessageID: 11})
	time.Sleep(20 * time.Millisecond)
	if len(s.Messages()) != 0 {
		t.Fatal("idempotent delete changed state")
	}
}

func TestMessageEditedPush(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	editedAt := time.Now()
	updated := models.Message{ID: 11, Room: "room-1", SenderID: 2, Text: "hello (fixed)", IsEdited: true, EditedAt: &editedAt}
	fs.push(models.WSEvent{Event: models.EventMessageEdited, Room: "room-1", Message: &updated})

	waitFor(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Text == "hello (fixed)" && msgs[0].IsEdited
	}, "edit never applied")

	// Only the edit fields change; the rest of the entry stays as rendered.
	if got := s.Messages()[0]; got.SenderName != "Bob" || got.EditedAt == nil {
		t.Fatalf("edit replaced unrelated fields: %+v", got)
	}
}

func TestEditViaRESTAppliesLocally(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	editedAt := time.Now()
	fs.mu.Lock()
	fs.editResp = models.Message{ID: 11, Room: "room-1", SenderID: 2, Text: "rewritten", IsEdited: true, EditedAt: &editedAt}
	fs.mu.Unlock()

	if err := s.Edit(context.Background(), 11, "rewritten"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := s.Messages()[0]; got.Text != "rewritten" || !got.IsEdited {
		t.Fatalf("edit not applied locally: %+v", got)
	}
}

func TestCloseRemovesListeners(t *testing.T) {
	fs := newFakeServer(t)
	c, s := fs.openRoom(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// With the session's listeners gone, pushes must not mutate its state.
	// A sentinel on a still-registered global listener orders the assertion
	// after the pushes were dispatched.
	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sentinel := make(chan struct{}, 1)
	defer conn.OnNotification(func(models.WSEvent) { sentinel <- struct{}{} })()

	stray := models.Message{ID: 500, Room: "room-1", SenderID: 2, Text: "late", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &stray})
	fs.push(models.WSEvent{Event: models.EventNotification, Notification: &models.Notification{Room: "room-1"}})

	select {
	case <-sentinel:
	case <-time.After(2 * time.Second):
		t.Fatal("sentinel notification never arrived")
	}
	if len(s.Messages()) != 1 {
		t.Fatal("closed session still received push messages")
	}
}

func TestRejoinReregistersListeners(t *testing.T) {
	fs := newFakeServer(t)
	_, s := fs.openRoom(t)

	if err := s.Rejoin(context.Background()); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	// Listener re-registration must not multiply handling: one push, one
	// appended message.
	incoming := models.Message{ID: 600, Room: "room-1", SenderID: 2, Text: "after rejoin", CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &incoming})
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "message after rejoin never appended")

	time.Sleep(20 * time.Millisecond)
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("message count = %d after rejoin, want 2", got)
	}
}
