package library

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
	"github.com/osa030/melodystream/internal/infra/config"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]bool
	gets    int
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]bool)}
}

func (c *fakeCache) Get(_ context.Context, userID, songID string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return false, false, errors.New("cache down")
	}
	v, ok := c.values[userID+"/"+songID]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, userID, songID string, liked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[userID+"/"+songID] = liked
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID, songID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, userID+"/"+songID)
	return nil
}

func (c *fakeCache) lookup(userID, songID string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[userID+"/"+songID]
	return v, ok
}

type fixture struct {
	svc   *Service
	store *sqlite.Store
	cache *fakeCache
	admin Actor
	alice Actor
	bob   Actor
}

func newFixture(t *testing.T, filters map[string]config.FilterConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Filters = filters

	store, err := sqlite.Open(ctx, ":memory:", sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, cache: newFakeCache(), admin: Actor{IsAdmin: true}}
	f.svc = NewService(store, cfg, f.cache)

	for _, u := range []*user.User{
		{ID: "alice", Username: "alice", Email: "alice@example.com", PasswordHash: "x"},
		{ID: "bob", Username: "bob", Email: "bob@example.com", PasswordHash: "x"},
	} {
		require.NoError(t, store.CreateUser(ctx, u))
	}
	f.alice = Actor{UserID: "alice"}
	f.bob = Actor{UserID: "bob"}

	for i, s := range []track.Track{
		{ID: "song1", Title: "Blinding Lights", Artist: "The Weeknd", Duration: 200},
		{ID: "song2", Title: "Shape of You", Artist: "Ed Sheeran", Duration: 233},
		{ID: "song3", Title: "Bohemian Rhapsody", Artist: "Queen", Duration: 354},
	} {
		s.AudioURL = "https://cdn.example.com/" + s.ID + ".mp3"
		s.CreatedAt = time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC)
		require.NoError(t, store.CreateSong(ctx, &s))
	}
	return f
}

func TestService_Songs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	songs, err := f.svc.ListSongs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"song3", "song2", "song1"}, track.IDs(songs))

	found, err := f.svc.SearchSongs(ctx, "  queen ")
	require.NoError(t, err)
	assert.Equal(t, []string{"song3"}, track.IDs(found))

	_, err = f.svc.GetSong(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	t.Run("create requires admin", func(t *testing.T) {
		song := track.Track{Title: "Levitating", Artist: "Dua Lipa", Duration: 203, AudioURL: "https://cdn.example.com/lev.mp3"}

		_, err := f.svc.CreateSong(ctx, f.alice, song)
		assert.True(t, errors.Is(err, ErrForbidden))

		created, err := f.svc.CreateSong(ctx, f.admin, song)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := f.svc.GetSong(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Levitating", got.Title)
	})

	t.Run("create validates", func(t *testing.T) {
		_, err := f.svc.CreateSong(ctx, f.admin, track.Track{Title: " ", Artist: "x", AudioURL: "not a url"})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, errors.Is(f.svc.DeleteSong(ctx, f.bob, "song1"), ErrForbidden))
		require.NoError(t, f.svc.DeleteSong(ctx, f.admin, "song1"))
		assert.True(t, errors.Is(f.svc.DeleteSong(ctx, f.admin, "song1"), ErrNotFound))
	})
}

func TestService_Playlists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]config.FilterConfig{
		"duplicate_song_filter": {Enabled: true},
		"playlist_size_filter":  {Enabled: true, Settings: map[string]any{"max_songs": 2}},
		"song_duration_filter":  {Enabled: true, Settings: map[string]any{"max_duration_sec": 300}},
	})

	require.Len(t, f.svc.Filters(), 4)

	private, err := f.svc.CreatePlaylist(ctx, f.alice, CreatePlaylistRequest{Name: "  Drive  "})
	require.NoError(t, err)
	assert.Equal(t, "Drive", private.Name)

	public, err := f.svc.CreatePlaylist(ctx, f.alice, CreatePlaylistRequest{Name: "Hits", IsPublic: true})
	require.NoError(t, err)

	_, err = f.svc.CreatePlaylist(ctx, f.alice, CreatePlaylistRequest{Name: ""})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	t.Run("visibility", func(t *testing.T) {
		_, err := f.svc.GetPlaylist(ctx, f.bob, private.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		detail, err := f.svc.GetPlaylist(ctx, f.bob, public.ID)
		require.NoError(t, err)
		assert.Equal(t, "Hits", detail.Name)

		others, err := f.svc.ListPublicPlaylists(ctx, f.bob)
		require.NoError(t, err)
		require.Len(t, others, 1)
		assert.Equal(t, public.ID, others[0].ID)

		own, err := f.svc.ListPlaylists(ctx, f.alice)
		require.NoError(t, err)
		assert.Len(t, own, 2)
	})

	t.Run("add songs through the filter chain", func(t *testing.T) {
		e, err := f.svc.AddSong(ctx, f.alice, private.ID, "song1", nil, filter.OriginUser)
		require.NoError(t, err)
		assert.Equal(t, 0, e.Position)

		// Duplicate
		_, err = f.svc.AddSong(ctx, f.alice, private.ID, "song1", nil, filter.OriginUser)
		var rejected *RejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "duplicate_song", rejected.Code)
		assert.Equal(t, "This song is already in the playlist", rejected.Message)

		// Too long
		_, err = f.svc.AddSong(ctx, f.alice, private.ID, "song3", nil, filter.OriginUser)
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "song_duration_exceeded", rejected.Code)

		// Not the owner
		_, err = f.svc.AddSong(ctx, f.bob, public.ID, "song1", nil, filter.OriginUser)
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "not_playlist_owner", rejected.Code)

		// Private playlists of others are hidden
		_, err = f.svc.AddSong(ctx, f.bob, private.ID, "song1", nil, filter.OriginUser)
		assert.True(t, errors.Is(err, ErrNotFound))

		e, err = f.svc.AddSong(ctx, f.alice, private.ID, "song2", nil, filter.OriginUser)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Position)

		// Full
		_, err = f.svc.AddSong(ctx, Actor{}, private.ID, "song3", nil, filter.OriginSystem)
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "playlist_full", rejected.Code)

		_, err = f.svc.AddSong(ctx, f.alice, private.ID, "missing", nil, filter.OriginUser)
		assert.True(t, errors.Is(err, ErrNotFound))

		detail, err := f.svc.GetPlaylist(ctx, f.alice, private.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"song1", "song2"}, track.IDs(playlist.Tracks(detail.Songs)))
		assert.Equal(t, int64(433), detail.TotalDuration)

		tracks, err := f.svc.PlaylistTracks(ctx, f.alice, private.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"song1", "song2"}, track.IDs(tracks))
	})

	t.Run("remove song", func(t *testing.T) {
		assert.True(t, errors.Is(f.svc.RemoveSong(ctx, f.bob, public.ID, "song1"), ErrForbidden))
		require.NoError(t, f.svc.RemoveSong(ctx, f.alice, private.ID, "song2"))
		assert.True(t, errors.Is(f.svc.RemoveSong(ctx, f.alice, private.ID, "song2"), ErrNotFound))
	})

	t.Run("update", func(t *testing.T) {
		name := "Night Drive"
		public := true
		upd := playlist.Update{Name: &name, IsPublic: &public}

		_, err := f.svc.UpdatePlaylist(ctx, f.bob, private.ID, upd)
		assert.True(t, errors.Is(err, ErrNotFound))

		p, err := f.svc.UpdatePlaylist(ctx, f.alice, private.ID, upd)
		require.NoError(t, err)
		assert.Equal(t, "Night Drive", p.Name)
		assert.True(t, p.IsPublic)

		empty := ""
		_, err = f.svc.UpdatePlaylist(ctx, f.alice, private.ID, playlist.Update{Name: &empty})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, errors.Is(f.svc.DeletePlaylist(ctx, f.bob, public.ID), ErrForbidden))
		require.NoError(t, f.svc.DeletePlaylist(ctx, f.alice, public.ID))
		_, err := f.svc.GetPlaylist(ctx, f.alice, public.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestService_Likes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	liked, err := f.svc.LikeStatus(ctx, "alice", "song1")
	require.NoError(t, err)
	assert.False(t, liked)

	cached, ok := f.cache.lookup("alice", "song1")
	assert.True(t, ok)
	assert.False(t, cached)

	require.NoError(t, f.svc.Like(ctx, "alice", "song1"))
	cached, _ = f.cache.lookup("alice", "song1")
	assert.True(t, cached)

	liked, err = f.svc.LikeStatus(ctx, "alice", "song1")
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, f.svc.Like(ctx, "alice", "song2"))
	tracks, err := f.svc.LikedTracks(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	require.NoError(t, f.svc.Unlike(ctx, "alice", "song1"))
	liked, err = f.svc.LikeStatus(ctx, "alice", "song1")
	require.NoError(t, err)
	assert.False(t, liked)

	t.Run("missing song drops the cache entry", func(t *testing.T) {
		require.NoError(t, f.cache.Set(ctx, "alice", "missing", true))
		assert.True(t, errors.Is(f.svc.Like(ctx, "alice", "missing"), ErrNotFound))
		_, ok := f.cache.lookup("alice", "missing")
		assert.False(t, ok)
	})

	t.Run("anonymous", func(t *testing.T) {
		assert.True(t, errors.Is(f.svc.Like(ctx, "", "song1"), ErrForbidden))
		assert.True(t, errors.Is(f.svc.Unlike(ctx, "", "song1"), ErrForbidden))
	})

	t.Run("cache failure falls back to the database", func(t *testing.T) {
		f.cache.failGet = true
		liked, err := f.svc.LikeStatus(ctx, "alice", "song2")
		require.NoError(t, err)
		assert.True(t, liked)
	})
}

func TestService_LikesWithoutCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.svc.cache = nil

	require.NoError(t, f.svc.Like(ctx, "bob", "song3"))
	liked, err := f.svc.LikeStatus(ctx, "bob", "song3")
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestService_Accounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	reg := user.Registration{Username: "demo", Email: "Demo@Example.com", Password: "password123"}
	u, err := f.svc.Register(ctx, reg)
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, "password123", u.PasswordHash)

	_, err = f.svc.Register(ctx, reg)
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = f.svc.Register(ctx, user.Registration{Username: "x", Email: "bad", Password: "short"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	admin, err := f.svc.CreateAccount(ctx, user.Registration{Username: "admin", Email: "admin@example.com", Password: "admin1234"}, true)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    bool
	}{
		{name: "username", identifier: "demo", password: "password123"},
		{name: "email", identifier: "demo@example.com", password: "password123"},
		{name: "wrong password", identifier: "demo", password: "password124", wantErr: true},
		{name: "unknown user", identifier: "ghost", password: "password123", wantErr: true},
		{name: "empty", identifier: "", password: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Authenticate(ctx, tt.identifier, tt.password)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidCredentials))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, u.ID, got.ID)
		})
	}

	got, err := f.svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Username)
}
