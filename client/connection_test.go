package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chatsync/models"
)

func TestConnectReusesLiveConnection(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.newClient(t)

	ctx := context.Background()
	first, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	second, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if first != second {
		t.Fatal("a live connection was not reused")
	}
}

func TestConnectReplacesDeadConnection(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.newClient(t)

	ctx := context.Background()
	first, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if first.Alive() {
		t.Fatal("closed connection reports alive")
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done never closed")
	}

	second, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if first == second {
		t.Fatal("dead connection was reused")
	}
	if !second.Alive() {
		t.Fatal("replacement connection not alive")
	}
}

func TestDisposerStopsHandler(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.newClient(t)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	var calls int32
	dispose := conn.OnNewMessage(func(models.WSEvent) { atomic.AddInt32(&calls, 1) })

	msg := models.Message{ID: 1, Room: "room-1", SenderID: 2, CreatedAt: time.Now()}
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &msg})
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, "handler never fired")

	dispose()
	fs.push(models.WSEvent{Event: models.EventNewMessage, Room: "room-1", Message: &msg})

	// A sentinel on another event type orders the assertion after dispatch.
	sentinel := make(chan struct{}, 1)
	defer conn.OnNotification(func(models.WSEvent) { sentinel <- struct{}{} })()
	fs.push(models.WSEvent{Event: models.EventNotification, Notification: &models.Notification{Room: "room-1"}})
	select {
	case <-sentinel:
	case <-time.After(2 * time.Second):
		t.Fatal("sentinel never arrived")
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("disposed handler fired again (calls = %d)", got)
	}
}

func TestSendOnClosedConnection(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.newClient(t)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.Close()

	if err := conn.Identify(1, "Ann"); err != models.ErrNotConnected {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func TestRegistryMultipleHandlersPerEvent(t *testing.T) {
	r := newRegistry()
	var a, b int
	disposeA := r.add(models.EventNewMessage, func(models.WSEvent) { a++ })
	r.add(models.EventNewMessage, func(models.WSEvent) { b++ })

	r.dispatch(models.WSEvent{Event: models.EventNewMessage})
	if a != 1 || b != 1 {
		t.Fatalf("handlers fired %d, %d times; want 1, 1", a, b)
	}

	disposeA()
	r.dispatch(models.WSEvent{Event: models.EventNewMessage})
	if a != 1 || b != 2 {
		t.Fatalf("after dispose: %d, %d; want 1, 2", a, b)
	}
}

func TestRegistryHandlerMayUnsubscribeDuringDispatch(t *testing.T) {
	r := newRegistry()
	var dispose func()
	fired := 0
	dispose = r.add(models.EventNewMessage, func(models.WSEvent) {
		fired++
		dispose()
	})

	r.dispatch(models.WSEvent{Event: models.EventNewMessage})
	r.dispatch(models.WSEvent{Event: models.EventNewMessage})
	if fired != 1 {
		t.Fatalf("self-unsubscribing handler fired %d times", fired)
	}
}
