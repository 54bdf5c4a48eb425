package arena

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Participant is a member of the arena for the current week.
type Participant struct {
	ID                    string    `json:"id"`
	DisplayName           string    `json:"display_name"`
	Points                uint      `json:"points"`
	ChallengesWon         uint      `json:"challenges_won"`
	Team                  string    `json:"team,omitempty"`
	CompletedChallengeIDs []string  `json:"completed_challenge_ids"`
	JoinedAt              time.Time `json:"joined_at"`
}

// HasCompleted reports whether the participant already claimed a challenge instance.
func (p *Participant) HasCompleted(challengeID string) bool {
	return slices.Contains(p.CompletedChallengeIDs, challengeID)
}

// Team is a named group of participants. Members holds display names in order.
type Team struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Challenge is one activation of a catalog template.
type Challenge struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	RewardPoints uint     `json:"reward_points"`
	RuleType     RuleType `json:"rule_type"`
	RuleTarget   string   `json:"rule_target"`
	StartedAt    int64    `json:"started_at"`
	EndTime      int64    `json:"end_time"`
}

// InstanceID identifies this activation. The same template rotated in again
// later gets a different id because its end time differs.
func (c Challenge) InstanceID() string {
	return fmt.Sprintf("%s_%d", c.Name, c.EndTime)
}

// WindowStart is the earliest watch time that counts toward this challenge.
func (c Challenge) WindowStart() time.Time {
	return time.Unix(c.StartedAt, 0)
}

// Ends returns the end time as a time.Time.
func (c Challenge) Ends() time.Time {
	return time.Unix(c.EndTime, 0)
}

// Expired reports whether now is past the challenge end time.
func (c Challenge) Expired(now time.Time) bool {
	return now.Unix() > c.EndTime
}

// Rule parses the challenge's rule into its typed form.
func (c Challenge) Rule() (Rule, error) {
	return ParseRule(c.RuleType, c.RuleTarget)
}

// VoteState holds in-flight team size and start votes.
type VoteState struct {
	SizeVotes  map[string]int  `json:"size_votes"`
	StartVotes map[string]bool `json:"start_votes"`
}

func newVoteState() VoteState {
	return VoteState{
		SizeVotes:  make(map[string]int),
		StartVotes: make(map[string]bool),
	}
}

// Phase is the team formation phase derived from the state.
type Phase string

const (
	PhaseOpen   Phase = "open"
	PhaseVoting Phase = "voting"
	PhaseActive Phase = "active"
)

// State is the arena aggregate. It is loaded, mutated and saved as a whole.
type State struct {
	Participants     map[string]*Participant `json:"participants"`
	Teams            []Team                  `json:"teams"`
	CurrentChallenge *Challenge              `json:"current_challenge,omitempty"`
	Active           bool                    `json:"active"`
	WeekStart        time.Time               `json:"week_start"`
	Votes            VoteState               `json:"votes"`

	// Version is maintained by the store for optimistic concurrency.
	Version int64 `json:"-"`
}

// NewState returns an empty arena whose week starts at now.
func NewState(now time.Time) *State {
	return &State{
		Participants: make(map[string]*Participant),
		WeekStart:    now,
		Votes:        newVoteState(),
	}
}

// Normalize fills nil maps left behind by decoding an older or empty document.
func (s *State) Normalize() {
	if s.Participants == nil {
		s.Participants = make(map[string]*Participant)
	}
	if s.Votes.SizeVotes == nil {
		s.Votes.SizeVotes = make(map[string]int)
	}
	if s.Votes.StartVotes == nil {
		s.Votes.StartVotes = make(map[string]bool)
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		Participants: make(map[string]*Participant, len(s.Participants)),
		Teams:        make([]Team, len(s.Teams)),
		Active:       s.Active,
		WeekStart:    s.WeekStart,
		Votes:        newVoteState(),
		Version:      s.Version,
	}
	for id, p := range s.Participants {
		cp := *p
		cp.CompletedChallengeIDs = slices.Clone(p.CompletedChallengeIDs)
		out.Participants[id] = &cp
	}
	for i, t := range s.Teams {
		out.Teams[i] = Team{Name: t.Name, Members: slices.Clone(t.Members)}
	}
	if s.CurrentChallenge != nil {
		c := *s.CurrentChallenge
		out.CurrentChallenge = &c
	}
	for id, size := range s.Votes.SizeVotes {
		out.Votes.SizeVotes[id] = size
	}
	for id := range s.Votes.StartVotes {
		out.Votes.StartVotes[id] = true
	}
	return out
}

// Participant looks up a joined participant.
func (s *State) Participant(id string) (*Participant, error) {
	p, ok := s.Participants[id]
	if !ok {
		return nil, ErrNotJoined
	}
	return p, nil
}

// JoinOrder returns participants sorted by join time, then id.
func (s *State) JoinOrder() []*Participant {
	out := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasTeams reports whether team formation has happened.
func (s *State) HasTeams() bool {
	return len(s.Teams) > 0
}

// Phase derives the formation phase.
func (s *State) Phase() Phase {
	switch {
	case s.Active:
		return PhaseActive
	case s.HasTeams() || len(s.Votes.SizeVotes) > 0:
		return PhaseVoting
	default:
		return PhaseOpen
	}
}

// Team returns the team with the given name, or nil.
func (s *State) Team(name string) *Team {
	for i := range s.Teams {
		if s.Teams[i].Name == name {
			return &s.Teams[i]
		}
	}
	return nil
}

// Reset clears the week and starts a new one at now.
func (s *State) Reset(now time.Time) {
	s.Participants = make(map[string]*Participant)
	s.Teams = nil
	s.CurrentChallenge = nil
	s.Active = false
	s.Votes = newVoteState()
	s.WeekStart = now
}
