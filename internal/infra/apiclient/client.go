// Package apiclient provides a client for the MelodyStream REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
)

// Errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Client is a MelodyStream API client.
// It implements the player session store on top of the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration

	mu    sync.RWMutex
	token string
}

// Config represents API client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      user.User `json:"user"`
}

// PlaylistDetail is a playlist with its songs.
type PlaylistDetail struct {
	playlist.Playlist
	Songs         []playlist.Entry `json:"songs"`
	TotalDuration int64            `json:"totalDuration"`
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid api base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates with a username or email and stores the returned token.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	body := map[string]string{"username": identifier, "password": password}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, reg user.Registration) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", reg, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*user.User, error) {
	var u user.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListSongs returns the catalog.
func (c *Client) ListSongs(ctx context.Context) ([]track.Track, error) {
	return c.SearchSongs(ctx, "")
}

// SearchSongs returns songs matching query.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]track.Track, error) {
	path := "/api/songs"
	if query != "" {
		path += "?" + url.Values{"q": {query}}.Encode()
	}
	var songs []track.Track
	if err := c.do(ctx, http.MethodGet, path, nil, &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// GetPlaylist returns a playlist with its songs.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*PlaylistDetail, error) {
	var p PlaylistDetail
	if err := c.do(ctx, http.MethodGet, "/api/playlists/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LikedSongs returns the authenticated user's liked songs.
func (c *Client) LikedSongs(ctx context.Context) ([]like.LikedSong, error) {
	var liked []like.LikedSong
	if err := c.do(ctx, http.MethodGet, "/api/liked-songs", nil, &liked); err != nil {
		return nil, err
	}
	return liked, nil
}

// LikeStatus reports whether the authenticated user liked the song.
// The server resolves the user from the token, so userID is not sent.
func (c *Client) LikeStatus(ctx context.Context, _ string, trackID string) (bool, error) {
	var status like.Status
	if err := c.do(ctx, http.MethodGet, "/api/liked-songs/"+url.PathEscape(trackID)+"/status", nil, &status); err != nil {
		return false, err
	}
	return status.IsLiked, nil
}

// Like marks the song as liked by the authenticated user.
func (c *Client) Like(ctx context.Context, _ string, trackID string) error {
	return c.do(ctx, http.MethodPost, "/api/liked-songs/"+url.PathEscape(trackID), nil, nil)
}

// Unlike removes the like of the authenticated user.
func (c *Client) Unlike(ctx context.Context, _ string, trackID string) error {
	return c.do(ctx, http.MethodDelete, "/api/liked-songs/"+url.PathEscape(trackID), nil, nil)
}

// do sends a request and decodes the JSON response into out.
// GET requests are retried on rate limiting and server errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := c.send(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}
		if i < attempts-1 {
			zlog.Debug().Msgf("apiclient: retrying %s %s: %v", method, path, err)
			select {
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "request cancelled")
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}

	switch status {
	case http.StatusUnauthorized:
		return errors.Mark(apiErr, ErrUnauthorized)
	case http.StatusForbidden:
		return errors.Mark(apiErr, ErrForbidden)
	case http.StatusNotFound:
		return errors.Mark(apiErr, ErrNotFound)
	case http.StatusConflict:
		return errors.Mark(apiErr, ErrConflict)
	default:
		return apiErr
	}
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	// Rate limit errors and server errors are retryable
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
}
