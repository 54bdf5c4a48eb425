package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Options tunes the arena. Zero values fall back to the defaults.
type Options struct {
	ChallengeDuration     time.Duration
	WeekLength            time.Duration
	CompletedHistoryLimit int
	HistoryLimit          int
	ValidationTimeout     time.Duration
}

// DefaultOptions returns the standard arena timing and limits.
func DefaultOptions() Options {
	return Options{
		ChallengeDuration:     24 * time.Hour,
		WeekLength:            7 * 24 * time.Hour,
		CompletedHistoryLimit: 50,
		HistoryLimit:          50,
		ValidationTimeout:     15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChallengeDuration <= 0 {
		o.ChallengeDuration = d.ChallengeDuration
	}
	if o.WeekLength <= 0 {
		o.WeekLength = d.WeekLength
	}
	if o.CompletedHistoryLimit <= 0 {
		o.CompletedHistoryLimit = d.CompletedHistoryLimit
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.ValidationTimeout <= 0 {
		o.ValidationTimeout = d.ValidationTimeout
	}
	return o
}

// CredentialStore resolves the media account linked to a participant.
type CredentialStore interface {
	// Credentials returns ErrAccountNotLinked when no account is linked.
	Credentials(ctx context.Context, participantID string) (Credentials, error)
	UpdateCredentials(ctx context.Context, participantID string, creds Credentials) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    StateStore
	Accounts CredentialStore
	History  WatchHistory
	Catalog  *Catalog
	Clock    clockwork.Clock
	Rand     *rand.Rand
}

// Service exposes the arena operations. Every operation loads the arena,
// applies one transition and saves it back while holding the service lock.
type Service struct {
	mu        sync.Mutex
	store     StateStore
	accounts  CredentialStore
	validator *Validator
	rotator   *Rotator
	clock     clockwork.Clock
	rng       *rand.Rand
}

// NewService wires an arena service.
func NewService(deps Deps, opts Options) *Service {
	opts = opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Service{
		store:     deps.Store,
		accounts:  deps.Accounts,
		validator: NewValidator(deps.History, opts),
		rotator:   NewRotator(deps.Catalog, deps.Rand, opts),
		clock:     deps.Clock,
		rng:       deps.Rand,
	}
}

// update runs fn against a freshly loaded state under the service lock and
// saves the result when fn reports a change.
func (s *Service) update(ctx context.Context, fn func(st *State, now time.Time) (bool, error)) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	changed, err := fn(st, s.clock.Now())
	if err != nil {
		return st, err
	}
	if !changed {
		return st, nil
	}

	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: saving arena: %w", ErrStoreUnavailable, err)
	}
	return st, nil
}

// view loads the state for read-only operations.
func (s *Service) view(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) (*State, error) {
	st, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading arena: %w", ErrStoreUnavailable, err)
	}
	st.Normalize()
	if st.WeekStart.IsZero() {
		st.WeekStart = s.clock.Now()
	}
	return st, nil
}

// Join adds the caller to the arena.
func (s *Service) Join(ctx context.Context, id, displayName string) (Participant, error) {
	var joined Participant
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		p, err := Join(st, id, displayName, now)
		if err != nil {
			return false, err
		}
		joined = *p
		return true, nil
	})
	if err != nil {
		return Participant{}, err
	}
	slog.Info("Participant joined arena", "participant", id, "team", joined.Team)
	return joined, nil
}

// Leave removes the caller and rebalances teams.
func (s *Service) Leave(ctx context.Context, id string) error {
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		return true, Leave(st, id)
	})
	if err != nil {
		return err
	}
	slog.Info("Participant left arena", "participant", id)
	return nil
}

// CastSizeVote records a team size vote and forms teams when the vote passes.
func (s *Service) CastSizeVote(ctx context.Context, id string, size int) (SizeVoteResult, []Team, error) {
	var res SizeVoteResult
	st, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		r, err := CastSizeVote(st, id, size, s.rng)
		if err != nil {
			return false, err
		}
		res = r
		return true, nil
	})
	if err != nil {
		return SizeVoteResult{}, nil, err
	}
	if !res.Formed {
		return res, nil, nil
	}
	slog.Info("Teams formed", "size", res.Size, "teams", len(st.Teams))
	return res, st.Clone().Teams, nil
}

// StartOutcome is the result of a start vote.
type StartOutcome struct {
	StartVoteResult
	Challenge *Challenge
}

// CastStartVote records a start vote and activates the arena when it passes.
func (s *Service) CastStartVote(ctx context.Context, id string) (StartOutcome, error) {
	var out StartOutcome
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		r, err := CastStartVote(st, id)
		if err != nil {
			return false, err
		}
		out.StartVoteResult = r
		if r.Ready {
			c := s.rotator.Pick(now)
			Activate(st, c)
			out.Challenge = &c
		}
		return true, nil
	})
	if err != nil {
		return StartOutcome{}, err
	}
	if out.Challenge != nil {
		slog.Info("Arena activated", "challenge", out.Challenge.Name, "endTime", out.Challenge.EndTime)
	}
	return out, nil
}

// Completion is the result of a challenge completion claim.
type Completion struct {
	Verdict   Verdict
	Challenge Challenge
	Awarded   bool
	Points    uint
}

// CompleteChallenge validates the current challenge against the caller's
// watch history and credits it once. The media service is queried outside
// the service lock; the ledger update re-checks everything under the lock.
func (s *Service) CompleteChallenge(ctx context.Context, id string) (Completion, error) {
	st, err := s.view(ctx)
	if err != nil {
		return Completion{}, err
	}
	p, err := st.Participant(id)
	if err != nil {
		return Completion{}, err
	}
	if st.CurrentChallenge == nil {
		return Completion{}, ErrNoActiveChallenge
	}
	c := *st.CurrentChallenge
	if c.Expired(s.clock.Now()) {
		return Completion{Challenge: c}, ErrChallengeExpired
	}
	if p.HasCompleted(c.InstanceID()) {
		return Completion{Challenge: c}, ErrAlreadyCompleted
	}

	creds, err := s.accounts.Credentials(ctx, id)
	if err != nil {
		return Completion{Challenge: c}, err
	}

	verdict, verr := s.validator.Validate(ctx, creds, c, c.WindowStart())
	if verdict.Refreshed != nil {
		if err := s.accounts.UpdateCredentials(ctx, id, *verdict.Refreshed); err != nil {
			slog.Error("Failed to persist refreshed credentials", "participant", id, "error", err)
		}
	}
	out := Completion{Verdict: verdict, Challenge: c}
	if verr != nil {
		return out, verr
	}
	if !verdict.Matched {
		return out, nil
	}

	_, err = s.update(ctx, func(st *State, now time.Time) (bool, error) {
		awarded, err := CompleteChallenge(st, id, c)
		if err != nil {
			return false, err
		}
		if !awarded {
			return false, ErrAlreadyCompleted
		}
		out.Awarded = true
		out.Points = st.Participants[id].Points
		return true, nil
	})
	if err != nil {
		return out, err
	}

	slog.Info("Challenge completed", "participant", id, "challenge", c.InstanceID(), "title", verdict.Evidence.Title)
	return out, nil
}

// AddPoints applies a manual adjustment. Callers must be trusted.
func (s *Service) AddPoints(ctx context.Context, id string, delta int) (uint, error) {
	var total uint
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		t, err := AddPoints(st, id, delta)
		total = t
		return err == nil, err
	})
	return total, err
}

// Status summarizes the arena.
type Status struct {
	Phase            Phase
	Active           bool
	Participants     int
	Teams            int
	Challenge        *Challenge
	WeekStart        time.Time
	SizeVotes        int
	SizeVotesNeeded  int
	StartVotes       int
	StartVotesNeeded int
}

// Status returns a summary of the arena.
func (s *Service) Status(ctx context.Context) (Status, error) {
	st, err := s.view(ctx)
	if err != nil {
		return Status{}, err
	}
	n := len(st.Participants)
	out := Status{
		Phase:            st.Phase(),
		Active:           st.Active,
		Participants:     n,
		Teams:            len(st.Teams),
		WeekStart:        st.WeekStart,
		SizeVotes:        len(st.Votes.SizeVotes),
		SizeVotesNeeded:  SizeVotesNeeded(n),
		StartVotes:       len(st.Votes.StartVotes),
		StartVotesNeeded: StartVotesNeeded(n),
	}
	if st.CurrentChallenge != nil {
		c := *st.CurrentChallenge
		out.Challenge = &c
	}
	return out, nil
}

// Participant returns one participant.
func (s *Service) Participant(ctx context.Context, id string) (Participant, error) {
	st, err := s.view(ctx)
	if err != nil {
		return Participant{}, err
	}
	p, err := st.Participant(id)
	if err != nil {
		return Participant{}, err
	}
	return *p, nil
}

// TeamStanding is a team with its combined score.
type TeamStanding struct {
	Team
	Points uint
}

// Teams returns teams with the sum of their members' points.
func (s *Service) Teams(ctx context.Context) ([]TeamStanding, error) {
	st, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeamStanding, 0, len(st.Teams))
	for _, t := range st.Clone().Teams {
		standing := TeamStanding{Team: t}
		for _, p := range st.Participants {
			if p.Team == t.Name {
				standing.Points += p.Points
			}
		}
		out = append(out, standing)
	}
	return out, nil
}

// Leaderboard returns participants ordered by points, then wins, then join
// time. A limit of zero or less returns everyone.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Participant, error) {
	st, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(st.Participants))
	for _, p := range st.JoinOrder() {
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].ChallengesWon > out[j].ChallengesWon
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AdminReset clears the arena and starts a new week.
func (s *Service) AdminReset(ctx context.Context) error {
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		st.Reset(now)
		return true, nil
	})
	if err == nil {
		slog.Info("Arena reset by admin")
	}
	return err
}

// AdminForceNewChallenge replaces the current challenge immediately. Team
// formation state, votes and the active flag are left as they are.
func (s *Service) AdminForceNewChallenge(ctx context.Context) (Challenge, error) {
	var c Challenge
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		c = s.rotator.Pick(now)
		st.CurrentChallenge = &c
		return true, nil
	})
	if err != nil {
		return Challenge{}, err
	}
	slog.Info("Challenge forced by admin", "challenge", c.Name, "endTime", c.EndTime)
	return c, nil
}

// Tick runs one rotation pass. Errors are captured in the result rather than
// returned so the caller's loop keeps going.
func (s *Service) Tick(ctx context.Context) TickResult {
	var res TickResult
	_, err := s.update(ctx, func(st *State, now time.Time) (bool, error) {
		res = s.rotator.Tick(st, now)
		return res.Changed(), nil
	})
	res.ID = uuid.NewString()
	if res.At.IsZero() {
		res.At = s.clock.Now()
	}
	if err != nil {
		res.Err = err
	}
	return res
}

// IsUserError reports whether err is an expected arena outcome rather than a
// system failure.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrNotJoined, ErrAlreadyJoined, ErrInsufficientParticipants, ErrAlreadyCompleted,
		ErrTeamsFormed, ErrTeamsNotFormed, ErrAlreadyActive, ErrInvalidTeamSize,
		ErrNoActiveChallenge, ErrChallengeExpired, ErrAccountNotLinked, ErrAdminOnly,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
