package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeHistory serves canned watch events. Tokens listed in expired are
// rejected with ErrAuthExpired.
type fakeHistory struct {
	mu         sync.Mutex
	events     []WatchEvent
	metadata   map[int64]Metadata
	expired    map[string]bool
	refreshed  Credentials
	refreshErr error
	historyErr error

	historyCalls  int
	metadataCalls int
	refreshCalls  int
}

func (f *fakeHistory) RecentWatchEvents(ctx context.Context, creds Credentials, limit int) ([]WatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.expired[creds.AccessToken] {
		return nil, fmt.Errorf("trakt: status 401: %w", ErrAuthExpired)
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeHistory) ContentMetadata(ctx context.Context, ref ContentRef) (Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	m, ok := f.metadata[ref.TraktID]
	if !ok {
		return Metadata{}, errors.New("not found")
	}
	return m, nil
}

func (f *fakeHistory) RefreshCredentials(ctx context.Context, refreshToken string) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return Credentials{}, f.refreshErr
	}
	return f.refreshed, nil
}

var validatorWindow = time.Unix(1_700_000_000, 0)

func movie(id int64, title string, at time.Time, m Metadata) WatchEvent {
	return WatchEvent{ID: id, Kind: KindMovieWatch, WatchedAt: at, Title: title, Ref: ContentRef{TraktID: id}, Metadata: m}
}

func ratingChallenge() Challenge {
	return Challenge{Name: "Critics' Choice", RewardPoints: 60, RuleType: RuleRating, RuleTarget: "8.0", StartedAt: validatorWindow.Unix(), EndTime: validatorWindow.Add(24 * time.Hour).Unix()}
}

func TestValidate_FirstMatchWins(t *testing.T) {
	h := &fakeHistory{events: []WatchEvent{
		movie(1, "Almost", validatorWindow.Add(3*time.Hour), Metadata{Rating: floatp(7.9)}),
		movie(2, "Great", validatorWindow.Add(2*time.Hour), Metadata{Rating: floatp(8.0)}),
		movie(3, "Also Great", validatorWindow.Add(time.Hour), Metadata{Rating: floatp(9.1)}),
	}}
	v := NewValidator(h, DefaultOptions())

	verdict, err := v.Validate(context.Background(), Credentials{AccessToken: "ok"}, ratingChallenge(), validatorWindow)
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Matched || verdict.Evidence.Title != "Great" {
		t.Fatalf("want match on Great, got %+v", verdict)
	}
	if h.metadataCalls != 0 {
		t.Fatalf("extended events must not trigger metadata lookups, got %d", h.metadataCalls)
	}
}

func TestValidate_NoEventsInWindow(t *testing.T) {
	h := &fakeHistory{events: []WatchEvent{
		movie(1, "Old", validatorWindow.Add(-time.Second), Metadata{Rating: floatp(9)}),
		{ID: 2, Kind: KindEpisodeWatch, WatchedAt: validatorWindow.Add(time.Hour), Metadata: Metadata{Rating: floatp(9)}},
		{ID: 3, Kind: KindMovieScrobble, WatchedAt: validatorWindow.Add(time.Hour), Metadata: Metadata{Rating: floatp(9)}},
	}}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "ok"}, ratingChallenge(), validatorWindow)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Matched || verdict.Reason != ReasonNoEventsInWindow {
		t.Fatalf("want %q, got %+v", ReasonNoEventsInWindow, verdict)
	}
}

func TestValidate_WindowStartIsInclusive(t *testing.T) {
	h := &fakeHistory{events: []WatchEvent{movie(1, "Edge", validatorWindow, Metadata{Rating: floatp(8.5)})}}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "ok"}, ratingChallenge(), validatorWindow)
	if err != nil || !verdict.Matched {
		t.Fatalf("event at window start must count: %+v, %v", verdict, err)
	}
}

func TestValidate_FetchesMissingMetadata(t *testing.T) {
	h := &fakeHistory{
		events: []WatchEvent{
			movie(1, "Unknown", validatorWindow.Add(2*time.Hour), Metadata{Year: intp(2001)}),
			movie(2, "Bare", validatorWindow.Add(time.Hour), Metadata{}),
		},
		metadata: map[int64]Metadata{2: {Rating: floatp(8.2)}},
	}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "ok"}, ratingChallenge(), validatorWindow)
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Matched || verdict.Evidence.Title != "Bare" {
		t.Fatalf("want match on Bare after lookup, got %+v", verdict)
	}
	// the failed lookup for movie 1 is tolerated
	if h.metadataCalls != 2 {
		t.Fatalf("want 2 metadata lookups, got %d", h.metadataCalls)
	}
}

func TestValidate_NoQualifyingEvent(t *testing.T) {
	h := &fakeHistory{events: []WatchEvent{movie(1, "Meh", validatorWindow.Add(time.Hour), Metadata{Rating: floatp(5)})}}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "ok"}, ratingChallenge(), validatorWindow)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Reason != ReasonNoQualifyingEvent {
		t.Fatalf("want %q, got %q", ReasonNoQualifyingEvent, verdict.Reason)
	}
}

func TestValidate_RefreshesOnce(t *testing.T) {
	h := &fakeHistory{
		events:    []WatchEvent{movie(1, "Great", validatorWindow.Add(time.Hour), Metadata{Rating: floatp(8.8)})},
		expired:   map[string]bool{"stale": true},
		refreshed: Credentials{AccessToken: "fresh", RefreshToken: "r2"},
	}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, ratingChallenge(), validatorWindow)
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Matched || verdict.Refreshed == nil || verdict.Refreshed.AccessToken != "fresh" {
		t.Fatalf("want match with refreshed credentials, got %+v", verdict)
	}
	if h.refreshCalls != 1 || h.historyCalls != 2 {
		t.Fatalf("want 1 refresh / 2 history calls, got %d / %d", h.refreshCalls, h.historyCalls)
	}
}

func TestValidate_SecondAuthFailureIsTerminal(t *testing.T) {
	h := &fakeHistory{
		expired:   map[string]bool{"stale": true, "fresh": true},
		refreshed: Credentials{AccessToken: "fresh", RefreshToken: "r2"},
	}
	verdict, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, ratingChallenge(), validatorWindow)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("want ErrAuthExpired, got %v", err)
	}
	if h.refreshCalls != 1 {
		t.Fatalf("refresh must happen once, got %d", h.refreshCalls)
	}
	if verdict.Refreshed == nil {
		t.Fatal("refreshed credentials must still be reported")
	}
}

func TestValidate_RefreshFailure(t *testing.T) {
	h := &fakeHistory{expired: map[string]bool{"stale": true}, refreshErr: errors.New("invalid_grant")}
	_, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "stale", RefreshToken: "r1"}, ratingChallenge(), validatorWindow)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("want ErrAuthExpired, got %v", err)
	}

	h = &fakeHistory{expired: map[string]bool{"stale": true}}
	_, err = NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "stale"}, ratingChallenge(), validatorWindow)
	if !errors.Is(err, ErrAuthExpired) || h.refreshCalls != 0 {
		t.Fatalf("without a refresh token: want ErrAuthExpired and no refresh, got %v (%d)", err, h.refreshCalls)
	}
}

func TestValidate_HistoryError(t *testing.T) {
	boom := errors.New("connection reset")
	h := &fakeHistory{historyErr: boom}
	_, err := NewValidator(h, DefaultOptions()).Validate(context.Background(), Credentials{AccessToken: "ok", RefreshToken: "r"}, ratingChallenge(), validatorWindow)
	if !errors.Is(err, boom) || errors.Is(err, ErrAuthExpired) {
		t.Fatalf("want wrapped transport error, got %v", err)
	}
	if h.refreshCalls != 0 {
		t.Fatal("non-auth failures must not refresh")
	}
}
