package arena

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeAccounts struct {
	mu      sync.Mutex
	creds   map[string]Credentials
	updates int
}

func (f *fakeAccounts) Credentials(ctx context.Context, id string) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return Credentials{}, ErrAccountNotLinked
	}
	return c, nil
}

func (f *fakeAccounts) UpdateCredentials(ctx context.Context, id string, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[id] = creds
	f.updates++
	return nil
}

type serviceFixture struct {
	svc      *Service
	store    *MemoryStore
	clock    *clockwork.FakeClock
	history  *fakeHistory
	accounts *fakeAccounts
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	catalog, err := NewCatalog([]Template{
		{Name: "Critics' Choice", RewardPoints: 60, RuleType: RuleRating, RuleTarget: "8.0"},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &serviceFixture{
		store:    NewMemoryStore(),
		clock:    clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		history:  &fakeHistory{},
		accounts: &fakeAccounts{creds: map[string]Credentials{}},
	}
	f.svc = NewService(Deps{
		Store:    f.store,
		Accounts: f.accounts,
		History:  f.history,
		Catalog:  catalog,
		Clock:    f.clock,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	}, DefaultOptions())
	return f
}

// activate joins ids, forms one team and starts the arena.
func (f *serviceFixture) activate(t *testing.T, ids ...string) Challenge {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if _, err := f.svc.Join(ctx, id, "name-"+id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
		f.accounts.creds[id] = Credentials{AccessToken: "token-" + id, RefreshToken: "refresh-" + id}
	}
	for _, id := range ids {
		res, _, err := f.svc.CastSizeVote(ctx, id, len(ids))
		if err != nil {
			t.Fatalf("size vote %s: %v", id, err)
		}
		if res.Formed {
			break
		}
	}
	for _, id := range ids {
		out, err := f.svc.CastStartVote(ctx, id)
		if err != nil {
			t.Fatalf("start vote %s: %v", id, err)
		}
		if out.Challenge != nil {
			return *out.Challenge
		}
	}
	t.Fatal("arena never activated")
	return Challenge{}
}

func TestService_FullFlow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.activate(t, "a", "b")

	status, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Phase != PhaseActive || status.Challenge == nil || status.Challenge.InstanceID() != c.InstanceID() {
		t.Fatalf("unexpected status %+v", status)
	}

	f.clock.Advance(time.Hour)
	f.history.events = []WatchEvent{
		movie(1, "Almost", f.clock.Now().Add(-time.Minute), Metadata{Rating: floatp(7.9)}),
		movie(2, "Great", f.clock.Now().Add(-2*time.Minute), Metadata{Rating: floatp(8.0)}),
	}

	out, err := f.svc.CompleteChallenge(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Awarded || out.Points != 60 || out.Verdict.Evidence.Title != "Great" {
		t.Fatalf("unexpected completion %+v", out)
	}

	saves := f.store.Saves()
	if _, err := f.svc.CompleteChallenge(ctx, "a"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("want ErrAlreadyCompleted, got %v", err)
	}
	if f.store.Saves() != saves {
		t.Fatal("repeat completion must not write")
	}

	board, err := f.svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if board[0].ID != "a" || board[0].Points != 60 || board[1].ID != "b" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
	teams, err := f.svc.Teams(ctx)
	if err != nil || len(teams) != 1 || teams[0].Points != 60 {
		t.Fatalf("unexpected standings %+v, %v", teams, err)
	}
}

func TestService_CompleteRejectsWithoutWrites(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Join(ctx, "a", "A"); err != nil {
		t.Fatal(err)
	}
	saves := f.store.Saves()

	if _, err := f.svc.CompleteChallenge(ctx, "ghost"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("want ErrNotJoined, got %v", err)
	}
	if _, err := f.svc.CompleteChallenge(ctx, "a"); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("want ErrNoActiveChallenge, got %v", err)
	}
	if f.store.Saves() != saves {
		t.Fatal("rejected completions must not write")
	}
	if f.history.historyCalls != 0 {
		t.Fatal("rejected completions must not query history")
	}
}

func TestService_CompleteExpiredAndUnlinked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.activate(t, "a", "b")
	delete(f.accounts.creds, "b")

	if _, err := f.svc.CompleteChallenge(ctx, "b"); !errors.Is(err, ErrAccountNotLinked) {
		t.Fatalf("want ErrAccountNotLinked, got %v", err)
	}

	f.clock.Advance(25 * time.Hour)
	if _, err := f.svc.CompleteChallenge(ctx, "a"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("want ErrChallengeExpired, got %v", err)
	}
}

func TestService_CompletePersistsRefreshedCredentials(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.activate(t, "a", "b")
	f.clock.Advance(time.Minute)

	f.history.expired = map[string]bool{"token-a": true}
	f.history.refreshed = Credentials{AccessToken: "fresh", RefreshToken: "r2"}
	f.history.events = []WatchEvent{movie(1, "Meh", f.clock.Now(), Metadata{Rating: floatp(3)})}

	out, err := f.svc.CompleteChallenge(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if out.Awarded || out.Verdict.Reason != ReasonNoQualifyingEvent {
		t.Fatalf("unexpected completion %+v", out)
	}
	if f.accounts.creds["a"].AccessToken != "fresh" || f.accounts.updates != 1 {
		t.Fatalf("refreshed credentials not persisted: %+v", f.accounts.creds["a"])
	}
}

func TestService_StoreFailureKeepsPriorState(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Join(ctx, "a", "A"); err != nil {
		t.Fatal(err)
	}

	f.store.FailSaves(errors.New("disk full"))
	if _, err := f.svc.Join(ctx, "b", "B"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
	f.store.FailSaves(nil)

	if _, err := f.svc.Participant(ctx, "b"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("failed join must not be visible, got %v", err)
	}
	status, _ := f.svc.Status(ctx)
	if status.Participants != 1 {
		t.Fatalf("want 1 participant, got %d", status.Participants)
	}
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _ := store.Load(ctx)
	second, _ := store.Load(ctx)
	if err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("want version 1, got %d", first.Version)
	}
}

func TestService_TickRotatesAndResets(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.activate(t, "a", "b")

	f.clock.Advance(24*time.Hour + time.Second)
	res := f.svc.Tick(ctx)
	if res.Err != nil || !res.Rotated || res.ID == "" {
		t.Fatalf("want rotation, got %+v", res)
	}
	status, _ := f.svc.Status(ctx)
	if status.Challenge.InstanceID() == c.InstanceID() {
		t.Fatal("challenge not replaced")
	}

	f.clock.Advance(7 * 24 * time.Hour)
	res = f.svc.Tick(ctx)
	if !res.Reset {
		t.Fatalf("want weekly reset, got %+v", res)
	}
	status, _ = f.svc.Status(ctx)
	if status.Participants != 0 || status.Active || status.Phase != PhaseOpen {
		t.Fatalf("reset left state behind: %+v", status)
	}
}

func TestService_TickStallsWithOneParticipant(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c := f.activate(t, "a", "b")
	if err := f.svc.Leave(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(25 * time.Hour)
	res := f.svc.Tick(ctx)
	if res.Rotated || !res.Stalled {
		t.Fatalf("want stalled tick, got %+v", res)
	}
	status, _ := f.svc.Status(ctx)
	if status.Challenge.InstanceID() != c.InstanceID() {
		t.Fatal("expired challenge must stay in place")
	}
}

func TestService_AdminOperations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.activate(t, "a", "b")

	if total, err := f.svc.AddPoints(ctx, "a", 15); err != nil || total != 15 {
		t.Fatalf("AddPoints: %d, %v", total, err)
	}

	f.clock.Advance(time.Hour)
	c, err := f.svc.AdminForceNewChallenge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.StartedAt != f.clock.Now().Unix() {
		t.Fatalf("forced challenge must start now, got %d", c.StartedAt)
	}

	if err := f.svc.AdminReset(ctx); err != nil {
		t.Fatal(err)
	}
	status, _ := f.svc.Status(ctx)
	if status.Participants != 0 || status.Challenge != nil || !status.WeekStart.Equal(f.clock.Now()) {
		t.Fatalf("reset left state behind: %+v", status)
	}
}

func TestService_ForceChallengeKeepsFormationOpen(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := f.svc.Join(ctx, id, "name-"+id); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := f.svc.CastSizeVote(ctx, "a", 2); err != nil {
		t.Fatal(err)
	}

	forced, err := f.svc.AdminForceNewChallenge(ctx)
	if err != nil {
		t.Fatal(err)
	}

	status, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Active || status.Phase != PhaseVoting || status.SizeVotes != 1 {
		t.Fatalf("forcing a challenge must not touch formation, got %+v", status)
	}
	if status.Challenge == nil || status.Challenge.InstanceID() != forced.InstanceID() {
		t.Fatalf("forced challenge not installed: %+v", status.Challenge)
	}

	res, teams, err := f.svc.CastSizeVote(ctx, "b", 2)
	if err != nil {
		t.Fatalf("size vote after forced challenge: %v", err)
	}
	if !res.Formed || len(teams) != 2 {
		t.Fatalf("want teams formed, got %+v %v", res, teams)
	}

	for _, id := range []string{"a", "b"} {
		if _, err := f.svc.CastStartVote(ctx, id); err != nil {
			t.Fatalf("start vote %s: %v", id, err)
		}
	}
	if status, _ := f.svc.Status(ctx); !status.Active {
		t.Fatalf("start vote must still activate the arena, got %+v", status)
	}
}

func TestIsUserError(t *testing.T) {
	if !IsUserError(ErrNotJoined) || IsUserError(ErrStoreUnavailable) || IsUserError(errors.New("x")) {
		t.Fatal("IsUserError misclassifies")
	}
}
