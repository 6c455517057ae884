package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
)

var base = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createSong(t *testing.T, s *Store, id, title, artist string, offset time.Duration) track.Track {
	t.Helper()
	song := track.Track{
		ID:        id,
		Title:     title,
		Artist:    artist,
		Duration:  200,
		AudioURL:  "https://cdn.example.com/" + id + ".mp3",
		CreatedAt: base.Add(offset),
	}
	require.NoError(t, s.CreateSong(context.Background(), &song))
	return song
}

func createUser(t *testing.T, s *Store, id, username string) user.User {
	t.Helper()
	u := user.User{ID: id, Username: username, Email: username + "@example.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), &u))
	return u
}

func TestMigrations(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		require.NoError(t, err)
		require.NotEmpty(t, migrations)

		for i := 1; i < len(migrations); i++ {
			assert.Less(t, migrations[i-1].Version, migrations[i].Version)
		}
		for _, m := range migrations {
			assert.NotEmpty(t, m.Up)
			assert.NotEmpty(t, m.Down)
		}
	})

	t.Run("run, rollback and rerun", func(t *testing.T) {
		ctx := context.Background()
		s := newTestStore(t)

		version, err := CurrentVersion(ctx, s.DB())
		require.NoError(t, err)
		assert.Equal(t, 1, version)

		// Running again is a no-op.
		require.NoError(t, RunMigrations(ctx, s.DB()))

		require.NoError(t, RollbackMigration(ctx, s.DB()))
		_, err = s.DB().ExecContext(ctx, "SELECT 1 FROM users LIMIT 1")
		assert.Error(t, err)

		require.NoError(t, RunMigrations(ctx, s.DB()))
		_, err = s.DB().ExecContext(ctx, "SELECT 1 FROM users LIMIT 1")
		assert.NoError(t, err)
	})
}

func TestSongs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	createSong(t, s, "song1", "Blinding Lights", "The Weeknd", 0)
	createSong(t, s, "song2", "Shape of You", "Ed Sheeran", time.Minute)
	createSong(t, s, "song3", "100% Pure", "Ed Sheeran", 2*time.Minute)

	t.Run("list newest first", func(t *testing.T) {
		songs, err := s.ListSongs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"song3", "song2", "song1"}, track.IDs(songs))
	})

	t.Run("get", func(t *testing.T) {
		song, err := s.GetSong(ctx, "song1")
		require.NoError(t, err)
		assert.Equal(t, "Blinding Lights", song.Title)
		assert.Equal(t, "", song.Album)
		assert.True(t, base.Equal(song.CreatedAt))

		_, err = s.GetSong(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("search", func(t *testing.T) {
		tests := []struct {
			query    string
			expected []string
		}{
			{query: "sheeran", expected: []string{"song3", "song2"}},
			{query: "LIGHTS", expected: []string{"song1"}},
			{query: "%", expected: []string{"song3"}},
			{query: "", expected: []string{"song3", "song2", "song1"}},
			{query: "nothing", expected: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.query, func(t *testing.T) {
				songs, err := s.SearchSongs(ctx, tt.query)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, track.IDs(songs))
			})
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		dup := track.Track{ID: "song1", Title: "x", Artist: "y", AudioURL: "https://cdn.example.com/x.mp3"}
		assert.True(t, errors.Is(s.CreateSong(ctx, &dup), ErrConflict))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteSong(ctx, "song2"))
		assert.True(t, errors.Is(s.DeleteSong(ctx, "song2"), ErrNotFound))
	})
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	demo := user.User{Username: "demo", Email: "Demo@Example.com", PasswordHash: "hash", FirstName: "Demo"}
	require.NoError(t, s.CreateUser(ctx, &demo))
	assert.NotEmpty(t, demo.ID)

	t.Run("lookup by username and email", func(t *testing.T) {
		byName, err := s.GetUserByLogin(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, demo.ID, byName.ID)

		byEmail, err := s.GetUserByLogin(ctx, "DEMO@example.com")
		require.NoError(t, err)
		assert.Equal(t, demo.ID, byEmail.ID)
		assert.Equal(t, "demo@example.com", byEmail.Email)
		assert.Equal(t, "Demo", byEmail.FirstName)

		_, err = s.GetUserByLogin(ctx, "nobody")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unique username and email", func(t *testing.T) {
		sameName := user.User{Username: "demo", Email: "other@example.com", PasswordHash: "hash"}
		assert.True(t, errors.Is(s.CreateUser(ctx, &sameName), ErrConflict))

		sameEmail := user.User{Username: "other", Email: "demo@example.com", PasswordHash: "hash"}
		assert.True(t, errors.Is(s.CreateUser(ctx, &sameEmail), ErrConflict))
	})

	t.Run("set admin", func(t *testing.T) {
		require.NoError(t, s.SetAdmin(ctx, demo.ID, true))
		u, err := s.GetUser(ctx, demo.ID)
		require.NoError(t, err)
		assert.True(t, u.IsAdmin)

		assert.True(t, errors.Is(s.SetAdmin(ctx, "missing", true), ErrNotFound))
	})

	t.Run("list", func(t *testing.T) {
		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "demo", users[0].Username)
	})
}

func TestPlaylists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := createUser(t, s, "alice", "alice")
	bob := createUser(t, s, "bob", "bob")
	createSong(t, s, "song1", "Blinding Lights", "The Weeknd", 0)
	createSong(t, s, "song2", "Shape of You", "Ed Sheeran", time.Minute)

	drive := playlist.Playlist{Name: "Drive", OwnerID: alice.ID, CreatedAt: base}
	chill := playlist.Playlist{Name: "Chill", OwnerID: alice.ID, IsPublic: true, CreatedAt: base.Add(time.Hour)}
	gym := playlist.Playlist{Name: "Gym", OwnerID: bob.ID, CreatedAt: base}
	for _, p := range []*playlist.Playlist{&drive, &chill, &gym} {
		require.NoError(t, s.CreatePlaylist(ctx, p))
	}

	t.Run("list by owner and public", func(t *testing.T) {
		owned, err := s.ListPlaylistsByOwner(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, "Chill", owned[0].Name)

		public, err := s.ListPublicPlaylists(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, public, 1)
		assert.Equal(t, chill.ID, public[0].ID)

		public, err = s.ListPublicPlaylists(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, public)
	})

	t.Run("entries", func(t *testing.T) {
		require.NoError(t, s.AddEntry(ctx, &playlist.Entry{PlaylistID: drive.ID, SongID: "song2", Position: 1}))
		require.NoError(t, s.AddEntry(ctx, &playlist.Entry{PlaylistID: drive.ID, SongID: "song1", Position: 0}))

		entries, err := s.ListEntries(ctx, drive.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"song1", "song2"}, track.IDs(playlist.Tracks(entries)))
		assert.Equal(t, "Shape of You", entries[1].Song.Title)

		err = s.AddEntry(ctx, &playlist.Entry{PlaylistID: drive.ID, SongID: "song1", Position: 2})
		assert.True(t, errors.Is(err, ErrConflict))

		err = s.AddEntry(ctx, &playlist.Entry{PlaylistID: drive.ID, SongID: "missing", Position: 2})
		assert.True(t, errors.Is(err, ErrNotFound))

		// Adding songs bumps the playlist to the top of the owner's list.
		owned, err := s.ListPlaylistsByOwner(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, drive.ID, owned[0].ID)

		require.NoError(t, s.RemoveEntry(ctx, drive.ID, "song2"))
		assert.True(t, errors.Is(s.RemoveEntry(ctx, drive.ID, "song2"), ErrNotFound))
	})

	t.Run("update", func(t *testing.T) {
		name := "Night Drive"
		playlist.Update{Name: &name}.Apply(&drive)
		require.NoError(t, s.UpdatePlaylist(ctx, &drive))

		got, err := s.GetPlaylist(ctx, drive.ID)
		require.NoError(t, err)
		assert.Equal(t, "Night Drive", got.Name)
	})

	t.Run("delete cascades entries", func(t *testing.T) {
		require.NoError(t, s.DeletePlaylist(ctx, drive.ID))

		_, err := s.GetPlaylist(ctx, drive.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		var n int
		require.NoError(t, s.DB().QueryRowContext(ctx,
			"SELECT COUNT(*) FROM playlist_songs WHERE playlist_id = ?", drive.ID).Scan(&n))
		assert.Zero(t, n)
	})
}

func TestLikes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := createUser(t, s, "user1", "demo")
	createSong(t, s, "song1", "Blinding Lights", "The Weeknd", 0)
	createSong(t, s, "song2", "Shape of You", "Ed Sheeran", time.Minute)

	liked, err := s.IsLiked(ctx, u.ID, "song1")
	require.NoError(t, err)
	assert.False(t, liked)

	require.NoError(t, s.LikeSong(ctx, u.ID, "song1"))
	require.NoError(t, s.LikeSong(ctx, u.ID, "song1"))
	require.NoError(t, s.LikeSong(ctx, u.ID, "song2"))

	liked, err = s.IsLiked(ctx, u.ID, "song1")
	require.NoError(t, err)
	assert.True(t, liked)

	songs, err := s.ListLikedSongs(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "song2", songs[0].SongID)
	assert.Equal(t, "Shape of You", songs[0].Song.Title)

	assert.True(t, errors.Is(s.LikeSong(ctx, u.ID, "missing"), ErrNotFound))

	require.NoError(t, s.UnlikeSong(ctx, u.ID, "song1"))
	require.NoError(t, s.UnlikeSong(ctx, u.ID, "song1"))

	require.NoError(t, s.DeleteSong(ctx, "song2"))
	all, err := s.ListAllLikes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
