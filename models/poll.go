package models

import "time"

type PollOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Poll is the authoritative poll state as returned by the server. Votes maps
// option ID to the list of voter IDs; when MultipleChoice is false a voter
// appears in at most one option's list.
type Poll struct {
	ID             int64             `json:"id"`
	Question       string            `json:"question"`
	Options        []PollOption      `json:"options"`
	Votes          map[int64][]int64 `json:"votes"`
	MultipleChoice bool              `json:"multiple_choice"`
	IsActive       bool              `json:"is_active"`
	EndTime        *time.Time        `json:"end_time,omitempty"`
	CreatedBy      int64             `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
}

// UniqueVoters counts distinct voters across all options.
func (p *Poll) UniqueVoters() int {
	seen := make(map[int64]struct{})
	for _, voters := range p.Votes {
		for _, id := range voters {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// VoterOptions returns the option IDs the given voter has voted for.
func (p *Poll) VoterOptions(userID int64) []int64 {
	var out []int64
	for optionID, voters := range p.Votes {
		for _, id := range voters {
			if id == userID {
				out = append(out, optionID)
				break
			}
		}
	}
	return out
}

// HasOption reports whether optionID belongs to this poll.
func (p *Poll) HasOption(optionID int64) bool {
	for _, o := range p.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

type CreatePollRequest struct {
	Question       string     `json:"question"`
	Options        []string   `json:"options"`
	MultipleChoice bool       `json:"multiple_choice"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

type VoteRequest struct {
	PollID            int64   `json:"poll_id"`
	UserID            int64   `json:"user_id"`
	SelectedOptionIDs []int64 `json:"selected_option_ids"`
}

type EditPollRequest struct {
	Question string     `json:"question,omitempty"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}
