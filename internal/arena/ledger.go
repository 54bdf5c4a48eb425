package arena

// CompleteChallenge credits a participant for a challenge instance. It returns
// false without touching points when the instance was already credited.
func CompleteChallenge(s *State, participantID string, c Challenge) (bool, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return false, err
	}

	id := c.InstanceID()
	if p.HasCompleted(id) {
		return false, nil
	}

	p.CompletedChallengeIDs = append(p.CompletedChallengeIDs, id)
	p.ChallengesWon++
	p.Points += c.RewardPoints
	return true, nil
}

// AddPoints applies a raw adjustment with no idempotency check. Only trusted
// callers may use it. Points never go below zero.
func AddPoints(s *State, participantID string, delta int) (uint, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return 0, err
	}

	next := int64(p.Points) + int64(delta)
	if next < 0 {
		next = 0
	}
	p.Points = uint(next)
	return p.Points, nil
}

// TrimCompleted keeps only the newest limit completed ids per participant and
// returns how many ids were dropped.
func TrimCompleted(s *State, limit int) int {
	if limit <= 0 {
		return 0
	}
	dropped := 0
	for _, p := range s.Participants {
		if over := len(p.CompletedChallengeIDs) - limit; over > 0 {
			p.CompletedChallengeIDs = append([]string(nil), p.CompletedChallengeIDs[over:]...)
			dropped += over
		}
	}
	return dropped
}
