package arena

import (
	"math/rand/v2"
	"time"
)

// TickResult describes what one rotation tick did.
type TickResult struct {
	ID       string
	At       time.Time
	Rotated  bool
	Previous *Challenge
	Current  *Challenge
	// Stalled is set when the challenge expired but too few participants
	// remain to rotate in a new one.
	Stalled bool
	Trimmed int
	Reset   bool
	Err     error
}

// Changed reports whether the tick mutated the state.
func (r TickResult) Changed() bool {
	return r.Rotated || r.Trimmed > 0 || r.Reset
}

// Rotator expires and replaces the active challenge and resets the week.
type Rotator struct {
	catalog *Catalog
	rng     *rand.Rand
	opts    Options
}

// NewRotator creates a rotator drawing from catalog.
func NewRotator(catalog *Catalog, rng *rand.Rand, opts Options) *Rotator {
	return &Rotator{
		catalog: catalog,
		rng:     rng,
		opts:    opts.withDefaults(),
	}
}

// Pick activates a random catalog template starting at now.
func (r *Rotator) Pick(now time.Time) Challenge {
	return r.catalog.Pick(r.rng).Activate(now, r.opts.ChallengeDuration)
}

// Tick runs one rotation pass over s.
func (r *Rotator) Tick(s *State, now time.Time) TickResult {
	res := TickResult{At: now}

	// Without a challenge there is nothing to rotate until the start vote
	// installs one, but the week still rolls over.
	if c := s.CurrentChallenge; c != nil && c.Expired(now) {
		if len(s.Participants) >= 2 {
			prev := *c
			next := r.Pick(now)
			s.CurrentChallenge = &next
			res.Rotated = true
			res.Previous = &prev
			res.Current = &next
		} else {
			res.Stalled = true
		}
	}

	res.Trimmed = TrimCompleted(s, r.opts.CompletedHistoryLimit)

	if now.Sub(s.WeekStart) > r.opts.WeekLength {
		s.Reset(now)
		res.Reset = true
	}

	return res
}
