package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/flor3z/noko-bot/internal/arena"
)

// User is the profile returned by /users/me.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Private  bool   `json:"private"`
	VIP      bool   `json:"vip"`
	IDs      struct {
		Slug string `json:"slug"`
	} `json:"ids"`
}

// AuthURL returns the authorization URL a user opens to link their account,
// along with the state value embedded in it.
func (c *Client) AuthURL() (string, string) {
	state := uuid.NewString()
	return c.oauth.AuthCodeURL(state), state
}

// Exchange trades an authorization code for credentials.
func (c *Client) Exchange(ctx context.Context, code string) (arena.Credentials, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return arena.Credentials{}, fmt.Errorf("failed to exchange code: %w", tokenError(err))
	}
	return credentials(tok), nil
}

// Refresh runs the refresh-token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (arena.Credentials, error) {
	// An expired token forces the source to hit the token endpoint.
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return arena.Credentials{}, fmt.Errorf("failed to refresh token: %w", tokenError(err))
	}
	return credentials(tok), nil
}

// GetProfile retrieves the profile of the user owning accessToken.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.get(ctx, c.baseURL+"/users/me", accessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &user, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func credentials(tok *oauth2.Token) arena.Credentials {
	return arena.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// tokenError marks rejected grants as arena.ErrAuthExpired.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	if re.ErrorCode == "invalid_grant" || (re.Response != nil && (re.Response.StatusCode == http.StatusUnauthorized || re.Response.StatusCode == http.StatusBadRequest)) {
		return fmt.Errorf("%w: %w", arena.ErrAuthExpired, err)
	}
	return err
}
