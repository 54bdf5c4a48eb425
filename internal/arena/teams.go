package arena

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// SizeVoteResult reports the tally after a team size vote.
type SizeVoteResult struct {
	Votes  int
	Needed int
	Formed bool
	Size   int
}

// StartVoteResult reports the tally after a start vote.
type StartVoteResult struct {
	Votes  int
	Needed int
	Ready  bool
}

// SizeVotesNeeded is the strict majority of participants.
func SizeVotesNeeded(participants int) int {
	return participants/2 + 1
}

// StartVotesNeeded is half the participants, but never fewer than two.
func StartVotesNeeded(participants int) int {
	return max(2, participants/2)
}

// Join adds a participant. Once teams exist, late joiners go straight to the
// smallest team instead of reopening the vote.
func Join(s *State, id, displayName string, now time.Time) (*Participant, error) {
	if _, ok := s.Participants[id]; ok {
		return nil, ErrAlreadyJoined
	}

	p := &Participant{
		ID:                    id,
		DisplayName:           displayName,
		CompletedChallengeIDs: []string{},
		JoinedAt:              now,
	}
	s.Participants[id] = p

	if s.HasTeams() {
		t := smallestTeam(s.Teams)
		t.Members = append(t.Members, p.DisplayName)
		p.Team = t.Name
	}
	return p, nil
}

// Leave removes a participant and rebalances every team from scratch.
func Leave(s *State, id string) error {
	p, err := s.Participant(id)
	if err != nil {
		return err
	}

	if t := s.Team(p.Team); t != nil {
		if i := slices.Index(t.Members, p.DisplayName); i >= 0 {
			t.Members = slices.Delete(t.Members, i, i+1)
		}
	}
	delete(s.Participants, id)
	delete(s.Votes.SizeVotes, id)
	delete(s.Votes.StartVotes, id)

	Rebalance(s)
	return nil
}

// CastSizeVote records a team size vote (last vote wins) and forms teams once a
// strict majority has voted.
func CastSizeVote(s *State, id string, size int, rng *rand.Rand) (SizeVoteResult, error) {
	if _, err := s.Participant(id); err != nil {
		return SizeVoteResult{}, err
	}
	if s.Active {
		return SizeVoteResult{}, ErrAlreadyActive
	}
	if s.HasTeams() {
		return SizeVoteResult{}, ErrTeamsFormed
	}

	n := len(s.Participants)
	if n < 2 {
		return SizeVoteResult{}, ErrInsufficientParticipants
	}
	if size < 1 || size > n {
		return SizeVoteResult{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidTeamSize, n)
	}

	s.Votes.SizeVotes[id] = size
	res := SizeVoteResult{
		Votes:  len(s.Votes.SizeVotes),
		Needed: SizeVotesNeeded(n),
	}
	if res.Votes < res.Needed {
		return res, nil
	}

	res.Size = WinningSize(s.Votes.SizeVotes, rng)
	FormTeams(s, res.Size)
	res.Formed = true
	return res, nil
}

// WinningSize returns the modal vote, breaking ties uniformly at random.
func WinningSize(votes map[string]int, rng *rand.Rand) int {
	counts := make(map[int]int)
	best := 0
	for _, size := range votes {
		counts[size]++
		best = max(best, counts[size])
	}

	var tied []int
	for size, c := range counts {
		if c == best {
			tied = append(tied, size)
		}
	}
	if len(tied) == 0 {
		return 0
	}
	slices.Sort(tied)
	if len(tied) == 1 {
		return tied[0]
	}
	return tied[rng.IntN(len(tied))]
}

// FormTeams chunks participants in join order into teams of size.
func FormTeams(s *State, size int) {
	ordered := s.JoinOrder()
	s.Teams = nil
	for start := 0; start < len(ordered); start += size {
		end := min(start+size, len(ordered))
		team := Team{Name: fmt.Sprintf("Team %d", len(s.Teams)+1)}
		for _, p := range ordered[start:end] {
			team.Members = append(team.Members, p.DisplayName)
			p.Team = team.Name
		}
		s.Teams = append(s.Teams, team)
	}
}

// Rebalance clears every team and deals participants round-robin in join order.
func Rebalance(s *State) {
	if !s.HasTeams() {
		return
	}
	for i := range s.Teams {
		s.Teams[i].Members = nil
	}
	for i, p := range s.JoinOrder() {
		t := &s.Teams[i%len(s.Teams)]
		t.Members = append(t.Members, p.DisplayName)
		p.Team = t.Name
	}
}

// CastStartVote records a vote to start the arena. Ready is set once enough
// participants agree; the caller then activates the arena.
func CastStartVote(s *State, id string) (StartVoteResult, error) {
	if _, err := s.Participant(id); err != nil {
		return StartVoteResult{}, err
	}
	if s.Active {
		return StartVoteResult{}, ErrAlreadyActive
	}
	if !s.HasTeams() {
		return StartVoteResult{}, ErrTeamsNotFormed
	}
	if len(s.Participants) < 2 {
		return StartVoteResult{}, ErrInsufficientParticipants
	}

	s.Votes.StartVotes[id] = true
	res := StartVoteResult{
		Votes:  len(s.Votes.StartVotes),
		Needed: StartVotesNeeded(len(s.Participants)),
	}
	res.Ready = res.Votes >= res.Needed
	return res, nil
}

// Activate installs the first challenge and marks the arena active.
func Activate(s *State, c Challenge) {
	s.CurrentChallenge = &c
	s.Active = true
	s.Votes = newVoteState()
}

func smallestTeam(teams []Team) *Team {
	smallest := &teams[0]
	for i := 1; i < len(teams); i++ {
		if len(teams[i].Members) < len(smallest.Members) {
			smallest = &teams[i]
		}
	}
	return smallest
}
