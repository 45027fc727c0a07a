package services

import (
	"context"
	"errors"
	"time"

	"chatsync/internal/db"
	"chatsync/models"

	"github.com/jackc/pgx/v5"
)

type PollService struct{}

func NewPollService() *PollService {
	return &PollService{}
}

// CreatePoll creates a poll with its options and returns the full state.
func (s *PollService) CreatePoll(ctx context.Context, creatorID int64, req models.CreatePollRequest) (*models.Poll, error) {
	if req.Question == "" || len(req.Options) < 2 {
		return nil, errors.New("a poll needs a question and at least two options")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var pollID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO polls (question, multiple_choice, end_time, created_by) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Question, req.MultipleChoice, req.EndTime, creatorID).Scan(&pollID)
	if err != nil {
		return nil, err
	}

	for _, text := range req.Options {
		if _, err := tx.Exec(ctx, `INSERT INTO poll_options (poll_id, option_text) VALUES ($1, $2)`, pollID, text); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetPoll(ctx, pollID)
}

// GetPoll returns the poll, its options, and the full vote map.
func (s *PollService) GetPoll(ctx context.Context, pollID int64) (*models.Poll, error) {
	var p models.Poll
	err := db.Pool.QueryRow(ctx,
		`SELECT id, question, multiple_choice, is_active, end_time, created_by, created_at FROM polls WHERE id = $1`,
		pollID).Scan(&p.ID, &p.Question, &p.MultipleChoice, &p.IsActive, &p.EndTime, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `SELECT id, option_text FROM poll_options WHERE poll_id = $1 ORDER BY id`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o models.PollOption
		if err := rows.Scan(&o.ID, &o.Text); err != nil {
			return nil, err
		}
		p.Options = append(p.Options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	p.Votes = make(map[int64][]int64, len(p.Options))
	voteRows, err := db.Pool.Query(ctx,
		`SELECT option_id, user_id FROM poll_votes WHERE poll_id = $1 ORDER BY created_at, user_id`, pollID)
	if err != nil {
		return nil, err
	}
	defer voteRows.Close()
	for voteRows.Next() {
		var optionID, userID int64
		if err := voteRows.Scan(&optionID, &userID); err != nil {
			return nil, err
		}
		p.Votes[optionID] = append(p.Votes[optionID], userID)
	}
	return &p, voteRows.Err()
}

// Vote replaces the user's selection. For single-choice polls exactly one
// option is allowed and any previous vote is removed first, so a voter never
// appears under two options.
func (s *PollService) Vote(ctx context.Context, pollID, userID int64, optionIDs []int64) error {
	poll, err := s.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if !poll.IsActive {
		return models.ErrPollClosed
	}
	if poll.EndTime != nil && time.Now().After(*poll.EndTime) {
		return models.ErrPollClosed
	}
	if len(optionIDs) == 0 {
		return models.ErrInvalidVote
	}
	if !poll.MultipleChoice && len(optionIDs) != 1 {
		return models.ErrInvalidVote
	}
	for _, id := range optionIDs {
		if !poll.HasOption(id) {
			return models.ErrInvalidVote
		}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2`, pollID, userID); err != nil {
		return err
	}
	for _, optionID := range optionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO poll_votes (poll_id, option_id, user_id) VALUES ($1, $2, $3)`,
			pollID, optionID, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ToggleStatus flips is_active; only the creator may do so.
func (s *PollService) ToggleStatus(ctx context.Context, pollID, userID int64) error {
	poll, err := s.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatedBy != userID {
		return models.ErrNotCreator
	}
	_, err = db.Pool.Exec(ctx, `UPDATE polls SET is_active = NOT is_active WHERE id = $1`, pollID)
	return err
}

// EditPoll updates question and end time; only the creator may do so.
func (s *PollService) EditPoll(ctx context.Context, pollID, userID int64, req models.EditPollRequest) error {
	poll, err := s.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatedBy != userID {
		return models.ErrNotCreator
	}
	question := poll.Question
	if req.Question != "" {
		question = req.Question
	}
	endTime := poll.EndTime
	if req.EndTime != nil {
		endTime = req.EndTime
	}
	_, err = db.Pool.Exec(ctx, `UPDATE polls SET question = $1, end_time = $2 WHERE id = $3`, question, endTime, pollID)
	return err
}
