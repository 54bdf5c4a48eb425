package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flor3z/noko-bot/internal/arena"
)

const historyJSON = `[
  {"id": 3, "watched_at": "2026-10-14T21:00:00.000Z", "action": "watch", "type": "movie",
   "movie": {"title": "Almost", "year": 2019, "ids": {"trakt": 11, "slug": "almost-2019"}, "rating": 7.9, "genres": ["drama"], "language": "en"}},
  {"id": 2, "watched_at": "2026-10-14T20:00:00.000Z", "action": "scrobble", "type": "movie",
   "movie": {"title": "Scrobbled", "year": 2001, "ids": {"trakt": 12}}},
  {"id": 1, "watched_at": "2026-10-14T19:00:00.000Z", "action": "watch", "type": "episode",
   "episode": {"season": 1, "number": 2, "title": "Pilot"}, "show": {"title": "Some Show"}}
]`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/oauth",
		MinInterval:  time.Millisecond,
		RetryDelay:   time.Millisecond,
	})
}

func TestRecentWatchEvents(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit: want 50, got %s", got)
		}
		if got := r.URL.Query().Get("extended"); got != "full" {
			t.Errorf("extended: want full, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: got %q", got)
		}
		if r.Header.Get("trakt-api-key") != "client-id" || r.Header.Get("trakt-api-version") != "2" {
			t.Errorf("missing trakt headers: %v", r.Header)
		}
		w.Write([]byte(historyJSON))
	}))

	events, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "tok"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("want 3 events, got %d", len(events))
	}

	first := events[0]
	if first.Kind != arena.KindMovieWatch || first.Title != "Almost" || first.Ref.TraktID != 11 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if first.Metadata.Rating == nil || *first.Metadata.Rating != 7.9 || first.Metadata.Language != "en" || !first.Metadata.Extended() {
		t.Fatalf("metadata not mapped: %+v", first.Metadata)
	}
	if want := time.Date(2026, 10, 14, 21, 0, 0, 0, time.UTC); !first.WatchedAt.Equal(want) {
		t.Fatalf("watched_at: want %v, got %v", want, first.WatchedAt)
	}

	if events[1].Kind != arena.KindMovieScrobble || events[1].Metadata.Extended() {
		t.Fatalf("scrobble mapped wrong: %+v", events[1])
	}
	if events[2].Kind != arena.KindEpisodeWatch || events[2].Title != "Some Show: Pilot" {
		t.Fatalf("episode mapped wrong: %+v", events[2])
	}
}

func TestContentMetadata(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movies/12" || r.URL.Query().Get("extended") != "full" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"title": "Scrobbled", "year": 2001, "ids": {"trakt": 12}, "runtime": 85, "votes": 1200, "genres": ["horror"]}`))
	}))

	md, err := c.ContentMetadata(context.Background(), arena.ContentRef{TraktID: 12})
	if err != nil {
		t.Fatal(err)
	}
	if md.Runtime == nil || *md.Runtime != 85 || md.Votes == nil || *md.Votes != 1200 || md.Genres[0] != "horror" {
		t.Fatalf("unexpected metadata %+v", md)
	}

	if _, err := c.ContentMetadata(context.Background(), arena.ContentRef{}); err == nil {
		t.Fatal("expected error for empty reference")
	}
}

func TestUnauthorizedIsAuthExpired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
	}))

	_, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "bad"}, 10)
	if !errors.Is(err, arena.ErrAuthExpired) || !IsAuthError(err) {
		t.Fatalf("want ErrAuthExpired, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want APIError 401, got %v", err)
	}
}

func TestServerErrorIsNotAuth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "tok"}, 10)
	if err == nil || errors.Is(err, arena.ErrAuthExpired) {
		t.Fatalf("want plain API error, got %v", err)
	}
}

func TestRetriesOnceOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))

	events, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "tok"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 || calls.Load() != 2 {
		t.Fatalf("want one retry, got %d calls", calls.Load())
	}
}

func TestRetryKeepsMinInterval(t *testing.T) {
	const minInterval = 80 * time.Millisecond

	var mu sync.Mutex
	var seen []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		first := len(seen) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		ClientID:    "client-id",
		BaseURL:     srv.URL,
		AuthURL:     srv.URL + "/oauth",
		MinInterval: minInterval,
		RetryDelay:  time.Millisecond,
	})

	if _, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "tok"}, 10); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("want 2 requests, got %d", len(seen))
	}
	if gap := seen[1].Sub(seen[0]); gap < minInterval-5*time.Millisecond {
		t.Fatalf("retry sent %v after the first request, want at least %v", gap, minInterval)
	}
}

func TestSecondTooManyRequestsFails(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	if _, err := c.RecentWatchEvents(context.Background(), arena.Credentials{AccessToken: "tok"}, 10); err == nil {
		t.Fatal("expected error after repeated 429")
	}
	if calls.Load() != 2 {
		t.Fatalf("want exactly 2 calls, got %d", calls.Load())
	}
}

func tokenHandler(t *testing.T, wantGrant string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != wantGrant {
			t.Errorf("grant_type: want %s, got %s", wantGrant, got)
		}
		if r.PostForm.Get("client_id") != "client-id" || r.PostForm.Get("client_secret") != "client-secret" {
			t.Errorf("client credentials not sent in params: %v", r.PostForm)
		}
		if r.PostForm.Get("refresh_token") == "revoked" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"revoked"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
			"expires_in":    7776000,
		})
	}
}

func TestExchangeAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/oauth/token", tokenHandler(t, "authorization_code"))
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-access" {
			t.Errorf("profile fetched with %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"username": "moviebuff", "name": "Movie Buff", "ids": {"slug": "moviebuff"}}`))
	})
	c := newTestClient(t, mux)

	creds, err := c.Exchange(context.Background(), "code-123")
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "new-access" || creds.RefreshToken != "new-refresh" || creds.Expiry.IsZero() {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	user, err := c.GetProfile(context.Background(), creds.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if user.Username != "moviebuff" {
		t.Fatalf("want moviebuff, got %s", user.Username)
	}
}

func TestRefreshCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/oauth/token", tokenHandler(t, "refresh_token"))
	c := newTestClient(t, mux)

	creds, err := c.RefreshCredentials(context.Background(), "old-refresh")
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "new-access" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	if _, err := c.RefreshCredentials(context.Background(), "revoked"); !errors.Is(err, arena.ErrAuthExpired) {
		t.Fatalf("want ErrAuthExpired for revoked grant, got %v", err)
	}
}

func TestAuthURL(t *testing.T) {
	c := NewClient(Config{ClientID: "client-id", AuthURL: "https://trakt.example/oauth"})
	raw, state := c.AuthURL()
	if state == "" || !strings.HasPrefix(raw, "https://trakt.example/oauth/authorize?") {
		t.Fatalf("unexpected auth url %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != "client-id" || q.Get("redirect_uri") != OutOfBandRedirect || q.Get("state") != state {
		t.Fatalf("unexpected auth params %v", q)
	}
}
