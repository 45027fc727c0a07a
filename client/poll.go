package client

import (
	"context"

	"chatsync/models"
)

// PollAPI is the poll view over the generic entity cache plus the optimistic
// mutation operations. Mutations never merge partial results locally: on
// success the cache's own forced refresh brings the data to the new
// authoritative state, so there is exactly one merge-logic path (the
// server's). On failure nothing changes — the operation never happened from
// the cache's point of view.
type PollAPI struct {
	client *Client
	cache  *Cache[models.Poll]
}

// NewPollAPI creates the poll cache for a client.
func NewPollAPI(c *Client) *PollAPI {
	return &PollAPI{
		client: c,
		cache:  NewCache[models.Poll](c.Poll),
	}
}

// Fetch returns poll state, from cache unless force is set. Concurrent
// fetches for the same poll share one request.
func (p *PollAPI) Fetch(ctx context.Context, pollID int64, force bool) (models.Poll, error) {
	return p.cache.Get(ctx, pollID, force)
}

// Cached returns the cached poll without a network call.
func (p *PollAPI) Cached(pollID int64) (models.Poll, bool) {
	return p.cache.Peek(pollID)
}

// IsLoading reports whether a fetch for the poll is in flight.
func (p *PollAPI) IsLoading(pollID int64) bool {
	return p.cache.IsLoading(pollID)
}

// OnData subscribes to poll state changes; returns the disposer.
func (p *PollAPI) OnData(pollID int64, fn func(models.Poll)) func() {
	return p.cache.OnData(pollID, fn)
}

// OnLoading subscribes to loading-state changes; returns the disposer.
func (p *PollAPI) OnLoading(pollID int64, fn func(bool)) func() {
	return p.cache.OnLoading(pollID, fn)
}

// Vote submits the user's option selection, then refreshes to the server's
// tally. Vote counting (unique voters, single-choice replacement) is the
// server's job — recomputing it locally is easy to get subtly wrong.
func (p *PollAPI) Vote(ctx context.Context, pollID, userID int64, optionIDs []int64) error {
	err := p.client.Vote(ctx, models.VoteRequest{
		PollID:            pollID,
		UserID:            userID,
		SelectedOptionIDs: optionIDs,
	})
	if err != nil {
		return err
	}
	_, err = p.cache.Refresh(ctx, pollID)
	return err
}

// ToggleStatus flips the poll's active state, then refreshes.
func (p *PollAPI) ToggleStatus(ctx context.Context, pollID int64) error {
	if err := p.client.TogglePoll(ctx, pollID); err != nil {
		return err
	}
	_, err := p.cache.Refresh(ctx, pollID)
	return err
}

// Edit updates poll fields, then refreshes.
func (p *PollAPI) Edit(ctx context.Context, pollID int64, req models.EditPollRequest) error {
	if err := p.client.EditPoll(ctx, pollID, req); err != nil {
		return err
	}
	_, err := p.cache.Refresh(ctx, pollID)
	return err
}
