package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/models"
)

// fakeServer implements just enough of the REST and push surface for the
// session tests: room details, message send/edit/delete, polls, and a
// websocket endpoint the tests can push events through.
type fakeServer struct {
	t *testing.T

	mu       sync.Mutex
	details  models.RoomDetails
	sendResp []models.Message
	sendCode int           // non-zero forces sends to fail with this status
	sendGate chan struct{} // when set, the send handler blocks until it closes
	editResp models.Message
	poll     models.Poll

	posts     int32
	pollGets  int32
	voteCalls int32

	conns []*websocket.Conn

	// received carries every event the client writes to the push channel.
	received chan models.WSEvent

	srv *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		received: make(chan models.WSEvent, 64),
		details: models.RoomDetails{
			Room: models.Room{ID: "room-1", Type: "group"},
			Members: []models.RoomMember{
				{UserID: 1, FullName: "Ann", IsAdmin: true, IsOnline: true},
				{UserID: 2, FullName: "Bob"},
			},
			Messages: []models.Message{
				{ID: 11, Room: "room-1", SenderID: 2, SenderName: "Bob", Text: "hello", CreatedAt: time.Now().Add(-time.Minute)},
			},
		},
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, ws)
		fs.mu.Unlock()
		go func() {
			for {
				var ev models.WSEvent
				if err := ws.ReadJSON(&ev); err != nil {
					return
				}
				fs.received <- ev
			}
		}()
	})

	mux.HandleFunc("/api/rooms/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages") {
			atomic.AddInt32(&fs.posts, 1)
			fs.mu.Lock()
			gate := fs.sendGate
			code := fs.sendCode
			resp := append([]models.Message(nil), fs.sendResp...)
			fs.mu.Unlock()
			if gate != nil {
				<-gate
			}
			if code != 0 {
				w.WriteHeader(code)
				json.NewEncoder(w).Encode(map[string]string{"error": "send rejected"})
				return
			}
			if len(resp) == 1 {
				json.NewEncoder(w).Encode(resp[0])
				return
			}
			json.NewEncoder(w).Encode(resp)
			return
		}
		fs.mu.Lock()
		details := fs.details
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(details)
	})

	mux.HandleFunc("/api/messages/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodDelete:
			json.NewEncoder(w).Encode(map[string]int64{"deleted": 1})
		case http.MethodPut:
			fs.mu.Lock()
			resp := fs.editResp
			fs.mu.Unlock()
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/polls/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/vote") {
			atomic.AddInt32(&fs.voteCalls, 1)
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
			return
		}
		if r.Method == http.MethodGet {
			atomic.AddInt32(&fs.pollGets, 1)
			fs.mu.Lock()
			poll := fs.poll
			fs.mu.Unlock()
			json.NewEncoder(w).Encode(poll)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) newClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: fs.srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// openRoom opens a session for user 1 ("Ann") in room-1.
func (fs *fakeServer) openRoom(t *testing.T) (*Client, *RoomSession) {
	t.Helper()
	c := fs.newClient(t)
	s, err := c.OpenRoom(context.Background(), SessionConfig{Room: "room-1", UserID: 1, DisplayName: "Ann"})
	if err != nil {
		t.Fatalf("open room: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return c, s
}

// push delivers an event to every connected client.
func (fs *fakeServer) push(ev models.WSEvent) {
	fs.mu.Lock()
	conns := append([]*websocket.Conn(nil), fs.conns...)
	fs.mu.Unlock()
	for _, ws := range conns {
		if err := ws.WriteJSON(ev); err != nil {
			fs.t.Logf("push: %v", err)
		}
	}
}

// nextEvent blocks for the next client-sent event.
func (fs *fakeServer) nextEvent(t *testing.T) models.WSEvent {
	t.Helper()
	select {
	case ev := <-fs.received:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client event")
		return models.WSEvent{}
	}
}

// waitFor polls a condition until it holds or the deadline passes. The push
// path is asynchronous, so assertions on its effects go through here.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
