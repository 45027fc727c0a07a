package models

import "testing"

func TestPollUniqueVoters(t *testing.T) {
	p := Poll{
		Options: []PollOption{{ID: 1}, {ID: 2}},
		Votes: map[int64][]int64{
			1: {10, 11},
			2: {10, 12},
		},
		MultipleChoice: true,
	}
	if got := p.UniqueVoters(); got != 3 {
		t.Fatalf("UniqueVoters = %d, want 3", got)
	}
}

func TestPollVoterOptions(t *testing.T) {
	p := Poll{
		Options: []PollOption{{ID: 1}, {ID: 2}, {ID: 3}},
		Votes: map[int64][]int64{
			1: {10},
			3: {10, 11},
		},
	}
	opts := p.VoterOptions(10)
	if len(opts) != 2 {
		t.Fatalf("VoterOptions(10) = %v, want two options", opts)
	}
	if got := p.VoterOptions(99); len(got) != 0 {
		t.Fatalf("VoterOptions(99) = %v, want none", got)
	}
}

func TestPollHasOption(t *testing.T) {
	p := Poll{Options: []PollOption{{ID: 1}, {ID: 2}}}
	if !p.HasOption(2) {
		t.Fatal("option 2 should exist")
	}
	if p.HasOption(3) {
		t.Fatal("option 3 should not exist")
	}
}
