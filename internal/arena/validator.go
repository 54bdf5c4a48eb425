package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Credentials authorize history lookups for one media account.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ContentRef identifies a movie in the media catalog.
type ContentRef struct {
	TraktID int64  `json:"trakt_id"`
	Slug    string `json:"slug,omitempty"`
	IMDB    string `json:"imdb,omitempty"`
	TMDB    int64  `json:"tmdb,omitempty"`
}

// EventKind classifies history entries. Only KindMovieWatch (a movie marked
// as watched) counts towards challenges.
type EventKind string

const (
	KindMovieWatch    EventKind = "movie_watch"
	KindMovieScrobble EventKind = "movie_scrobble"
	KindEpisodeWatch  EventKind = "episode_watch"
)

// WatchEvent is one entry of a user's watch history.
type WatchEvent struct {
	ID        int64
	Kind      EventKind
	WatchedAt time.Time
	Title     string
	Ref       ContentRef
	Metadata  Metadata
}

// WatchHistory is the read side of the media service used for validation.
// Implementations return errors wrapping ErrAuthExpired when credentials are
// rejected.
type WatchHistory interface {
	RecentWatchEvents(ctx context.Context, creds Credentials, limit int) ([]WatchEvent, error)
	ContentMetadata(ctx context.Context, ref ContentRef) (Metadata, error)
	RefreshCredentials(ctx context.Context, refreshToken string) (Credentials, error)
}

// Evidence is the watch event that satisfied a challenge.
type Evidence struct {
	Title     string
	WatchedAt time.Time
	Ref       ContentRef
	Metadata  Metadata
}

// Verdict is the outcome of validating one challenge for one participant.
type Verdict struct {
	Matched  bool
	Evidence *Evidence
	Reason   string
	// Refreshed holds new credentials when a refresh happened; the caller
	// should persist them.
	Refreshed *Credentials
}

// Validator checks watch history against challenge rules.
type Validator struct {
	history WatchHistory
	limit   int
	timeout time.Duration
}

// NewValidator creates a validator over history.
func NewValidator(history WatchHistory, opts Options) *Validator {
	opts = opts.withDefaults()
	return &Validator{
		history: history,
		limit:   opts.HistoryLimit,
		timeout: opts.ValidationTimeout,
	}
}

// Validate looks for the first watch event since windowStart that satisfies c.
// A rejected token is refreshed once and the whole lookup retried; any other
// failure is returned as is.
func (v *Validator) Validate(ctx context.Context, creds Credentials, c Challenge, windowStart time.Time) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	rule, err := c.Rule()
	if err != nil {
		return Verdict{}, fmt.Errorf("challenge %q: %w", c.Name, err)
	}

	verdict, err := v.attempt(ctx, creds, rule, windowStart)
	if err == nil || !errors.Is(err, ErrAuthExpired) {
		return verdict, err
	}

	if creds.RefreshToken == "" {
		return Verdict{}, err
	}

	slog.Debug("Refreshing media credentials after auth failure")
	refreshed, rerr := v.history.RefreshCredentials(ctx, creds.RefreshToken)
	if rerr != nil {
		if errors.Is(rerr, ErrAuthExpired) {
			return Verdict{}, fmt.Errorf("refreshing credentials: %w", rerr)
		}
		return Verdict{}, fmt.Errorf("%w: refreshing credentials: %v", ErrAuthExpired, rerr)
	}

	verdict, err = v.attempt(ctx, refreshed, rule, windowStart)
	verdict.Refreshed = &refreshed
	return verdict, err
}

func (v *Validator) attempt(ctx context.Context, creds Credentials, rule Rule, windowStart time.Time) (Verdict, error) {
	events, err := v.history.RecentWatchEvents(ctx, creds, v.limit)
	if err != nil {
		return Verdict{}, fmt.Errorf("fetching watch history: %w", err)
	}

	var candidates []WatchEvent
	for _, e := range events {
		if e.Kind == KindMovieWatch && !e.WatchedAt.Before(windowStart) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Verdict{Reason: ReasonNoEventsInWindow}, nil
	}

	for _, e := range candidates {
		meta := e.Metadata
		if !meta.Extended() {
			fetched, err := v.history.ContentMetadata(ctx, e.Ref)
			if err != nil {
				slog.Warn("Failed to fetch movie metadata", "title", e.Title, "traktID", e.Ref.TraktID, "error", err)
			} else {
				meta = fetched
			}
		}

		if rule.Matches(meta) {
			return Verdict{
				Matched: true,
				Evidence: &Evidence{
					Title:     e.Title,
					WatchedAt: e.WatchedAt,
					Ref:       e.Ref,
					Metadata:  meta,
				},
			}, nil
		}
	}

	return Verdict{Reason: ReasonNoQualifyingEvent}, nil
}
