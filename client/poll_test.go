package client

import (
	"context"
	"sync/atomic"
	"testing"

	"chatsync/models"
)

func TestPollVoteRefreshesCache(t *testing.T) {
	fs := newFakeServer(t)
	fs.poll = models.Poll{
		ID:       9,
		Question: "lunch?",
		Options:  []models.PollOption{{ID: 1, Text: "pizza"}, {ID: 2, Text: "soup"}},
		Votes:    map[int64][]int64{},
		IsActive: true,
	}

	polls := NewPollAPI(fs.newClient(t))
	ctx := context.Background()

	seed, err := polls.Fetch(ctx, 9, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if seed.UniqueVoters() != 0 {
		t.Fatalf("seed voters = %d", seed.UniqueVoters())
	}

	// The server tallies the vote; the client converges by refetching.
	fs.mu.Lock()
	fs.poll.Votes = map[int64][]int64{1: {1}}
	fs.mu.Unlock()

	if err := polls.Vote(ctx, 9, 1, []int64{1}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if n := atomic.LoadInt32(&fs.voteCalls); n != 1 {
		t.Fatalf("vote calls = %d", n)
	}
	if n := atomic.LoadInt32(&fs.pollGets); n != 2 {
		t.Fatalf("poll fetches = %d, want seed + post-vote refresh", n)
	}

	got, ok := polls.Cached(9)
	if !ok {
		t.Fatal("poll missing from cache after refresh")
	}
	if got.UniqueVoters() != 1 || len(got.VoterOptions(1)) != 1 {
		t.Fatalf("cache did not converge to server tally: %+v", got.Votes)
	}
}

func TestPollCachedServesWithoutFetch(t *testing.T) {
	fs := newFakeServer(t)
	fs.poll = models.Poll{ID: 9, Question: "lunch?", IsActive: true}

	polls := NewPollAPI(fs.newClient(t))
	if _, ok := polls.Cached(9); ok {
		t.Fatal("cache hit before any fetch")
	}

	if _, err := polls.Fetch(context.Background(), 9, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := polls.Fetch(context.Background(), 9, false); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if n := atomic.LoadInt32(&fs.pollGets); n != 1 {
		t.Fatalf("poll fetches = %d, want 1", n)
	}
}

func TestPollOnDataSharedByFetch(t *testing.T) {
	fs := newFakeServer(t)
	fs.poll = models.Poll{ID: 9, Question: "lunch?", IsActive: true}

	polls := NewPollAPI(fs.newClient(t))

	var notified int32
	defer polls.OnData(9, func(models.Poll) { atomic.AddInt32(&notified, 1) })()
	defer polls.OnData(9, func(models.Poll) { atomic.AddInt32(&notified, 1) })()

	if _, err := polls.Fetch(context.Background(), 9, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := atomic.LoadInt32(&notified); n != 2 {
		t.Fatalf("subscriber notifications = %d, want one per subscriber", n)
	}
}
