package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/flor3z/noko-bot/internal/arena"
)

const (
	DefaultBaseURL = "https://api.trakt.tv"
	DefaultAuthURL = "https://api.trakt.tv/oauth"

	// OutOfBandRedirect makes Trakt display the authorization code instead of
	// redirecting, so users can paste it into /authorize.
	OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

	apiVersion = "2"
)

var tracer = otel.Tracer("github.com/flor3z/noko-bot/internal/trakt")

// APIError is a non-2xx response from the Trakt API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trakt API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Unwrap maps rejected credentials onto arena.ErrAuthExpired.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return arena.ErrAuthExpired
	}
	return nil
}

// Config holds the application credentials registered with Trakt.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	AuthURL      string

	// Zero values use the defaults below.
	Timeout     time.Duration
	MinInterval time.Duration
	RetryDelay  time.Duration
}

// Client is a Trakt API client with rate limiting
type Client struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	oauth      *oauth2.Config
	retryDelay time.Duration

	// Simple rate limiter
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewClient creates a new Trakt API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = OutOfBandRedirect
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinInterval <= 0 {
		// Trakt allows 1000 GETs per 5 minutes per user; stay well under.
		cfg.MinInterval = 50 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Client{
		clientID: cfg.ClientID,
		baseURL:  cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL + "/authorize",
				TokenURL:  cfg.AuthURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		retryDelay:  cfg.RetryDelay,
		minInterval: cfg.MinInterval,
	}
}

// wait blocks until the next request slot or ctx is done.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	delay := c.minInterval - time.Since(c.lastRequest)
	if delay < 0 {
		delay = 0
	}
	c.lastRequest = time.Now().Add(delay)
	c.mu.Unlock()

	return sleep(ctx, delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// doRequest performs an HTTP request with rate limiting and a single retry
// on 429.
func (c *Client) doRequest(req *http.Request, accessToken string) (*http.Response, error) {
	ctx := req.Context()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := c.retryDelay
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			delay = time.Duration(secs) * time.Second
		}
		resp.Body.Close()

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		// The retry still takes a request slot.
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		return c.httpClient.Do(req.Clone(ctx))
	}

	return resp, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, url, accessToken string, result any) (err error) {
	ctx, span := tracer.Start(ctx, "trakt.get", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	span.SetAttributes(attribute.String("url.path", req.URL.Path))

	resp, err := c.doRequest(req, accessToken)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// IsAuthError reports whether err means the user must re-authorize.
func IsAuthError(err error) bool {
	return errors.Is(err, arena.ErrAuthExpired)
}
