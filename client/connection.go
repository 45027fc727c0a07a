package client

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"chatsync/models"
)

// Conn is the persistent push connection. There is one per Client, with a
// lifetime spanning the whole session rather than a single screen: leaving a
// room unregisters that room's scope but never closes the connection, since
// other rooms or global listeners (notifications) may still depend on it.
//
// Conn is not opened directly — use Client.Connect.
type Conn struct {
	writeMu sync.Mutex // gorilla conns do not allow concurrent writers
	ws      *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	subs *registry
}

// Connect establishes the push connection, or returns the existing one when
// it is still alive. Safe to call at every lifecycle checkpoint (app
// foreground, screen focus): a dropped connection is replaced, a live one is
// reused.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Alive() {
		return c.conn, nil
	}

	wsURL, err := c.wsEndpoint()
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: connecting push channel: %w", err)
	}

	conn := &Conn{
		ws:   ws,
		done: make(chan struct{}),
		subs: newRegistry(),
	}
	go conn.readLoop()

	c.conn = conn
	return conn, nil
}

// wsEndpoint derives the websocket URL from the REST base URL.
func (c *Client) wsEndpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("client: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("access_token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Alive reports whether the connection is still usable. Callers check this
// on app-foreground transitions and reconnect + rejoin when it is false.
func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Done is closed when the connection is lost or closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Only the owning Client should do this at
// end of session; room teardown goes through LeaveRoom instead.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	for {
		var ev models.WSEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			if !c.closed {
				c.closed = true
				close(c.done)
			}
			c.mu.Unlock()
			if !alreadyClosed && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("push connection lost: %v", err)
			}
			return
		}
		c.subs.dispatch(ev)
	}
}

// send writes one event under the write lock.
func (c *Conn) send(ev models.WSEvent) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return models.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(ev)
}

// Identify associates the connection with a user identity. Must be called
// once per successful connect before presence and room events are meaningful.
func (c *Conn) Identify(userID int64, username string) error {
	return c.send(models.WSEvent{Event: models.EventIdentify, UserID: userID, Username: username})
}

// JoinRoom scopes subsequent presence and message events to the room.
func (c *Conn) JoinRoom(roomID string, userID int64, displayName string) error {
	return c.send(models.WSEvent{Event: models.EventJoin, Room: roomID, UserID: userID, Username: displayName})
}

// LeaveRoom unregisters the room scope without closing the connection.
func (c *Conn) LeaveRoom(roomID string, userID int64) error {
	return c.send(models.WSEvent{Event: models.EventLeave, Room: roomID, UserID: userID})
}

// Relay pushes a just-confirmed message so other room members receive it in
// real time without polling.
func (c *Conn) Relay(msg models.Message) error {
	m := msg
	return c.send(models.WSEvent{Event: models.EventRelayMessage, Room: msg.Room, Message: &m})
}

// MarkSeen reports the read watermark for a room: everything at or before
// the unix-millisecond timestamp counts as read.
func (c *Conn) MarkSeen(roomID string, userID int64, before int64) error {
	return c.send(models.WSEvent{Event: models.EventSeen, Room: roomID, UserID: userID, SeenBefore: before})
}

// On registers a handler for an event type and returns its disposer. Every
// registration must be paired with the disposer on teardown — re-registering
// across mount cycles without removing the prior handler multiplies event
// handling.
func (c *Conn) On(event models.EventType, fn func(models.WSEvent)) func() {
	return c.subs.add(event, fn)
}

// Typed registration helpers for the event surface the sync layer consumes.

func (c *Conn) OnNewMessage(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventNewMessage, fn)
}

func (c *Conn) OnOnlineUsers(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventOnlineUsers, fn)
}

func (c *Conn) OnRoomMembers(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventRoomMembers, fn)
}

func (c *Conn) OnUserStatus(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventUserStatus, fn)
}

func (c *Conn) OnMessagesSeen(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventMessagesSeen, fn)
}

func (c *Conn) OnMessageDeleted(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventMessageDeleted, fn)
}

func (c *Conn) OnMessageEdited(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventMessageEdited, fn)
}

// OnNotification fires for cross-room new-message pings. This is a global
// listener: it stays registered while rooms come and go.
func (c *Conn) OnNotification(fn func(models.WSEvent)) func() {
	return c.subs.add(models.EventNotification, fn)
}

// registry is the typed subscription table behind Conn.On. Each add returns
// a disposer that removes exactly that handler.
type registry struct {
	mu       sync.Mutex
	nextID   int
	handlers map[models.EventType]map[int]func(models.WSEvent)
}

func newRegistry() *registry {
	return &registry{handlers: make(map[models.EventType]map[int]func(models.WSEvent))}
}

func (r *registry) add(event models.EventType, fn func(models.WSEvent)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[int]func(models.WSEvent))
	}
	r.nextID++
	id := r.nextID
	r.handlers[event][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers[event], id)
	}
}

// dispatch calls handlers outside the lock so a handler may subscribe or
// unsubscribe without deadlocking.
func (r *registry) dispatch(ev models.WSEvent) {
	r.mu.Lock()
	snapshot := make([]func(models.WSEvent), 0, len(r.handlers[ev.Event]))
	for _, fn := range r.handlers[ev.Event] {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(ev)
	}
}
