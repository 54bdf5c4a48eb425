package trakt

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// History actions reported by Trakt.
const (
	ActionWatch    = "watch"
	ActionScrobble = "scrobble"
	ActionCheckin  = "checkin"
)

// HistoryItem is one entry of /users/{id}/history.
type HistoryItem struct {
	ID        int64     `json:"id"`
	WatchedAt time.Time `json:"watched_at"`
	Action    string    `json:"action"`
	Type      string    `json:"type"`
	Movie     *Movie    `json:"movie,omitempty"`
	Episode   *Episode  `json:"episode,omitempty"`
	Show      *Show     `json:"show,omitempty"`
}

// Episode is an episode summary.
type Episode struct {
	Season int    `json:"season"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	IDs    IDs    `json:"ids"`
}

// Show is a show summary.
type Show struct {
	Title string `json:"title"`
	Year  *int   `json:"year"`
	IDs   IDs    `json:"ids"`
}

// GetHistory retrieves the authenticated user's most recent history entries,
// newest first.
func (c *Client) GetHistory(ctx context.Context, accessToken string, limit int) ([]HistoryItem, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("extended", "full")
	endpoint := fmt.Sprintf("%s/users/me/history?%s", c.baseURL, q.Encode())

	var items []HistoryItem
	if err := c.get(ctx, endpoint, accessToken, &items); err != nil {
		return nil, fmt.Errorf("failed to get watch history: %w", err)
	}

	return items, nil
}
