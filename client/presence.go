package client

import (
	"sort"
	"sync"

	"chatsync/models"
)

// PresenceTracker maintains the online set and member roster for one room.
// Room-scoped events replace state wholesale; the global per-user status
// event updates it incrementally — both paths converge to the same merged
// roster.
//
// The online set is kept a subset of the roster: IDs for users no longer in
// the room are dropped opportunistically when the roster is replaced or read.
type PresenceTracker struct {
	mu      sync.Mutex
	room    string
	members []models.RoomMember
	online  map[int64]struct{}

	subs    map[int]func()
	nextSub int
}

func newPresenceTracker(room string, members []models.RoomMember) *PresenceTracker {
	p := &PresenceTracker{
		room:   room,
		online: make(map[int64]struct{}),
		subs:   make(map[int]func()),
	}
	p.members = append(p.members, members...)
	for _, m := range members {
		if m.IsOnline {
			p.online[m.UserID] = struct{}{}
		}
	}
	return p
}

// handleOnlineUsers replaces the online set when the event targets this
// room; events for other rooms are ignored.
func (p *PresenceTracker) handleOnlineUsers(ev models.WSEvent) {
	if ev.Room != p.room {
		return
	}
	p.mu.Lock()
	p.online = make(map[int64]struct{}, len(ev.UserIDs))
	for _, id := range ev.UserIDs {
		p.online[id] = struct{}{}
	}
	p.mu.Unlock()
	p.notify()
}

// handleRoomMembers replaces the roster and prunes online IDs that no longer
// correspond to a member.
func (p *PresenceTracker) handleRoomMembers(ev models.WSEvent) {
	if ev.Room != p.room {
		return
	}
	p.mu.Lock()
	p.members = append(p.members[:0:0], ev.Members...)
	known := make(map[int64]struct{}, len(p.members))
	for _, m := range p.members {
		known[m.UserID] = struct{}{}
		if m.IsOnline {
			p.online[m.UserID] = struct{}{}
		}
	}
	for id := range p.online {
		if _, ok := known[id]; !ok {
			delete(p.online, id)
		}
	}
	p.mu.Unlock()
	p.notify()
}

// handleUserStatus applies a global single-user delta: the online set and
// the roster flag are updated in place rather than replaced.
func (p *PresenceTracker) handleUserStatus(ev models.WSEvent) {
	if ev.Online == nil {
		return
	}
	p.mu.Lock()
	if *ev.Online {
		p.online[ev.UserID] = struct{}{}
	} else {
		delete(p.online, ev.UserID)
	}
	for i := range p.members {
		if p.members[i].UserID == ev.UserID {
			p.members[i].IsOnline = *ev.Online
		}
	}
	p.mu.Unlock()
	p.notify()
}

// Members returns the roster with online flags merged in.
func (p *PresenceTracker) Members() []models.RoomMember {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RoomMember, len(p.members))
	for i, m := range p.members {
		_, on := p.online[m.UserID]
		m.IsOnline = on
		out[i] = m
	}
	return out
}

// OnlineUserIDs returns the online set restricted to current members, sorted
// for stable rendering.
func (p *PresenceTracker) OnlineUserIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	known := make(map[int64]struct{}, len(p.members))
	for _, m := range p.members {
		known[m.UserID] = struct{}{}
	}
	out := make([]int64, 0, len(p.online))
	for id := range p.online {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports whether a member is currently online.
func (p *PresenceTracker) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

// OnChange subscribes to presence updates; returns the disposer.
func (p *PresenceTracker) OnChange(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *PresenceTracker) notify() {
	p.mu.Lock()
	snapshot := make([]func(), 0, len(p.subs))
	for _, fn := range p.subs {
		snapshot = append(snapshot, fn)
	}
	p.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}
