package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/infra/auth"
	"github.com/osa030/melodystream/internal/infra/config"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

const adminToken = "admin-secret-token"

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Filters = map[string]config.FilterConfig{"duplicate_song_filter": {Enabled: true}}

	store, err := sqlite.Open(ctx, ":memory:", sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	song := track.Track{ID: "song1", Title: "Blinding Lights", Artist: "The Weeknd", Duration: 200, AudioURL: "https://cdn.example.com/1.mp3"}
	require.NoError(t, store.CreateSong(ctx, &song))

	svc := library.NewService(store, cfg, nil)
	h := NewHandler(svc, auth.NewIssuer(cfg.Auth.JWTSecret, time.Hour), Options{
		AdminToken:         adminToken,
		LoginRatePerMinute: 1,
		LoginBurst:         3,
	})

	server := httptest.NewServer(h.Router(nil))
	t.Cleanup(server.Close)
	return &testServer{Server: server, t: t}
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	} else if errOut, ok := out.(*errorBody); ok {
		_ = json.NewDecoder(resp.Body).Decode(errOut)
	}
	return resp.StatusCode
}

func (s *testServer) register(username string) AuthResponse {
	s.t.Helper()
	var resp AuthResponse
	status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, &resp)
	require.Equal(s.t, http.StatusCreated, status)
	require.NotEmpty(s.t, resp.Token)
	return resp
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	demo := s.register("demo")
	assert.Equal(t, "demo", demo.User.Username)

	t.Run("duplicate registration", func(t *testing.T) {
		status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "demo", "email": "other@example.com", "password": "password123",
		}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("invalid registration", func(t *testing.T) {
		var body errorBody
		status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "x", "email": "bad", "password": "short",
		}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_input", body.Code)
	})

	t.Run("current user", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/user", "", nil, nil))
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/user", "garbage", nil, nil))

		var u map[string]any
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/user", demo.Token, nil, &u))
		assert.Equal(t, "demo", u["username"])
		assert.NotContains(t, u, "PasswordHash")
	})

	t.Run("login and rate limit", func(t *testing.T) {
		var resp AuthResponse
		assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "demo@example.com", Password: "password123"}, &resp))
		assert.Equal(t, demo.User.ID, resp.User.ID)

		var body errorBody
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "demo", Password: "nope"}, &body))
		assert.Equal(t, "invalid_credentials", body.Code)

		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "demo", Password: "nope"}, nil))
		assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "demo", Password: "password123"}, nil))
	})
}

func TestLoginThrottleIgnoresForwardedFor(t *testing.T) {
	s := newTestServer(t)

	var statuses []int
	for i := range 10 {
		body, err := json.Marshal(LoginRequest{Username: "demo", Password: "nope"})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, s.URL+"/api/auth/login", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))

		resp, err := s.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{401, 401, 401}, statuses[:3])
	assert.Contains(t, statuses[3:], http.StatusTooManyRequests)
	assert.NotContains(t, statuses[3:], http.StatusUnauthorized)
}

func TestClientIP(t *testing.T) {
	h := &Handler{trustedProxies: parseTrustedProxies([]string{"192.0.2.10", "10.1.0.0/16", "not-an-ip"})}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:5123", want: "203.0.113.7"},
		{name: "untrusted peer ignores header", remoteAddr: "203.0.113.7:5123", forwarded: "10.0.0.1", want: "203.0.113.7"},
		{name: "trusted peer", remoteAddr: "192.0.2.10:443", forwarded: "198.51.100.4", want: "198.51.100.4"},
		{name: "spoofed leftmost hop skipped", remoteAddr: "192.0.2.10:443", forwarded: "1.2.3.4, 198.51.100.4", want: "198.51.100.4"},
		{name: "chain of trusted proxies", remoteAddr: "192.0.2.10:443", forwarded: "198.51.100.4, 10.1.2.3", want: "198.51.100.4"},
		{name: "trusted peer without header", remoteAddr: "192.0.2.10:443", want: "192.0.2.10"},
		{name: "malformed hop", remoteAddr: "192.0.2.10:443", forwarded: "garbage", want: "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, h.clientIP(r))
		})
	}
}

func TestSongEndpoints(t *testing.T) {
	s := newTestServer(t)
	demo := s.register("demo")

	var songs []track.Track
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/songs", "", nil, &songs))
	assert.Equal(t, []string{"song1"}, track.IDs(songs))

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/songs?q=nothing", "", nil, &songs))
	assert.Empty(t, songs)

	newSong := track.Track{Title: "Levitating", Artist: "Dua Lipa", Duration: 203, AudioURL: "https://cdn.example.com/lev.mp3"}
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/songs", "", newSong, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/songs", demo.Token, newSong, nil))

	var created track.Track
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/songs", adminToken, newSong, &created))
	assert.NotEmpty(t, created.ID)

	var got track.Track
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/songs/"+created.ID, "", nil, &got))
	assert.Equal(t, "Levitating", got.Title)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/songs/"+created.ID, adminToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/songs/"+created.ID, "", nil, nil))
}

func TestPlaylistEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")

	var p playlist.Playlist
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/playlists", alice.Token,
		library.CreatePlaylistRequest{Name: "Drive"}, &p))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/playlists", alice.Token,
		library.CreatePlaylistRequest{}, nil))

	path := "/api/playlists/" + p.ID
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, path+"/songs", alice.Token, AddSongRequest{SongID: "song1"}, nil))

	var body errorBody
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path+"/songs", alice.Token, AddSongRequest{SongID: "song1"}, &body))
	assert.Equal(t, "duplicate_song", body.Code)
	assert.Equal(t, "This song is already in the playlist", body.Message)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, path+"/songs", alice.Token, AddSongRequest{}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, bob.Token, nil, nil))

	var detail library.PlaylistDetail
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, alice.Token, nil, &detail))
	require.Len(t, detail.Songs, 1)
	assert.Equal(t, int64(200), detail.TotalDuration)

	public := true
	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, path, alice.Token, playlist.Update{IsPublic: &public}, &p))
	assert.True(t, p.IsPublic)

	var others []playlist.Playlist
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/playlists/public", bob.Token, nil, &others))
	assert.Len(t, others, 1)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, path+"/songs", bob.Token, AddSongRequest{SongID: "song1"}, &body))
	assert.Equal(t, "not_playlist_owner", body.Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, bob.Token, nil, nil))

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/songs/song1", alice.Token, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, alice.Token, nil, nil))

	var mine []playlist.Playlist
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/playlists", alice.Token, nil, &mine))
	assert.Empty(t, mine)

	// Admin tokens carry no user.
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/playlists", adminToken, nil, nil))
}

func TestLikedSongEndpoints(t *testing.T) {
	s := newTestServer(t)
	demo := s.register("demo")

	var status like.Status
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/liked-songs/song1/status", demo.Token, nil, &status))
	assert.False(t, status.IsLiked)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/liked-songs/song1", demo.Token, nil, &status))
	assert.True(t, status.IsLiked)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/liked-songs/missing", demo.Token, nil, nil))

	var liked []like.LikedSong
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/liked-songs", demo.Token, nil, &liked))
	require.Len(t, liked, 1)
	assert.Equal(t, "Blinding Lights", liked[0].Song.Title)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/liked-songs/song1", demo.Token, nil, &status))
	assert.False(t, status.IsLiked)
}

func TestCORSAndHealth(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/songs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/unknown", "", nil, nil))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "wrong scheme", header: "Basic abc", want: ""},
		{name: "query fallback", query: "?token=xyz", want: "xyz"},
		{name: "none", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/player/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(r))
		})
	}
}
