package trakt

import (
	"context"

	"github.com/flor3z/noko-bot/internal/arena"
)

var _ arena.WatchHistory = (*Client)(nil)

// RecentWatchEvents implements arena.WatchHistory.
func (c *Client) RecentWatchEvents(ctx context.Context, creds arena.Credentials, limit int) ([]arena.WatchEvent, error) {
	items, err := c.GetHistory(ctx, creds.AccessToken, limit)
	if err != nil {
		return nil, err
	}

	events := make([]arena.WatchEvent, 0, len(items))
	for _, item := range items {
		events = append(events, watchEvent(item))
	}
	return events, nil
}

// ContentMetadata implements arena.WatchHistory.
func (c *Client) ContentMetadata(ctx context.Context, ref arena.ContentRef) (arena.Metadata, error) {
	id, err := movieID(ref)
	if err != nil {
		return arena.Metadata{}, err
	}
	movie, err := c.GetMovie(ctx, id)
	if err != nil {
		return arena.Metadata{}, err
	}
	return movie.Metadata(), nil
}

// RefreshCredentials implements arena.WatchHistory.
func (c *Client) RefreshCredentials(ctx context.Context, refreshToken string) (arena.Credentials, error) {
	return c.Refresh(ctx, refreshToken)
}

func watchEvent(item HistoryItem) arena.WatchEvent {
	e := arena.WatchEvent{
		ID:        item.ID,
		WatchedAt: item.WatchedAt,
	}

	switch {
	case item.Type == "movie" && item.Movie != nil:
		e.Kind = arena.KindMovieScrobble
		if item.Action == ActionWatch {
			e.Kind = arena.KindMovieWatch
		}
		e.Title = item.Movie.Title
		e.Ref = item.Movie.Ref()
		e.Metadata = item.Movie.Metadata()
	case item.Episode != nil:
		e.Kind = arena.KindEpisodeWatch
		e.Title = item.Episode.Title
		if item.Show != nil {
			e.Title = item.Show.Title + ": " + item.Episode.Title
		}
	default:
		e.Kind = arena.EventKind(item.Type)
	}

	return e
}
