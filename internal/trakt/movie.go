package trakt

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flor3z/noko-bot/internal/arena"
)

// IDs are the identifiers Trakt attaches to every item.
type IDs struct {
	Trakt int64  `json:"trakt"`
	Slug  string `json:"slug"`
	IMDB  string `json:"imdb"`
	TMDB  int64  `json:"tmdb"`
}

// Movie is a movie summary. The optional fields are only present with
// extended=full.
type Movie struct {
	Title    string   `json:"title"`
	Year     *int     `json:"year"`
	IDs      IDs      `json:"ids"`
	Genres   []string `json:"genres,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Votes    *int     `json:"votes,omitempty"`
	Runtime  *int     `json:"runtime,omitempty"`
	Language *string  `json:"language,omitempty"`
	Overview string   `json:"overview,omitempty"`
}

// Metadata converts the movie into rule input.
func (m Movie) Metadata() arena.Metadata {
	md := arena.Metadata{
		Genres:  m.Genres,
		Year:    m.Year,
		Rating:  m.Rating,
		Runtime: m.Runtime,
		Votes:   m.Votes,
	}
	if m.Language != nil {
		md.Language = *m.Language
	}
	return md
}

// Ref returns the content reference of the movie.
func (m Movie) Ref() arena.ContentRef {
	return arena.ContentRef{
		TraktID: m.IDs.Trakt,
		Slug:    m.IDs.Slug,
		IMDB:    m.IDs.IMDB,
		TMDB:    m.IDs.TMDB,
	}
}

// GetMovie retrieves a movie with extended data by Trakt id or slug.
func (c *Client) GetMovie(ctx context.Context, id string) (*Movie, error) {
	endpoint := fmt.Sprintf("%s/movies/%s?extended=full", c.baseURL, id)

	var movie Movie
	if err := c.get(ctx, endpoint, "", &movie); err != nil {
		return nil, fmt.Errorf("failed to get movie %s: %w", id, err)
	}

	return &movie, nil
}

// movieID picks the identifier Trakt accepts for ref.
func movieID(ref arena.ContentRef) (string, error) {
	switch {
	case ref.TraktID > 0:
		return strconv.FormatInt(ref.TraktID, 10), nil
	case ref.Slug != "":
		return ref.Slug, nil
	case ref.IMDB != "":
		return ref.IMDB, nil
	default:
		return "", fmt.Errorf("movie reference has no trakt id, slug or imdb id")
	}
}
