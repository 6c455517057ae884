package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/melodystream/internal/domain/track"
)

const songColumns = `s.id, s.title, s.artist, COALESCE(s.album, ''), s.duration, s.audio_url,
	COALESCE(s.cover_image_url, ''), s.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSong(row scanner, dest *track.Track, extra ...any) error {
	fields := []any{
		&dest.ID, &dest.Title, &dest.Artist, &dest.Album, &dest.Duration,
		&dest.AudioURL, &dest.CoverURL, &dest.CreatedAt,
	}
	return row.Scan(append(extra, fields...)...)
}

// CreateSong inserts a song. An empty ID is replaced with a new UUID.
func (s *Store) CreateSong(ctx context.Context, t *track.Track) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO songs (id, title, artist, album, duration, audio_url, cover_image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Artist, nullString(t.Album), t.Duration, t.AudioURL, nullString(t.CoverURL), t.CreatedAt,
	)
	return mapError(err, "create song")
}

// GetSong returns the song with the given ID.
func (s *Store) GetSong(ctx context.Context, id string) (*track.Track, error) {
	var t track.Track
	row := s.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs s WHERE s.id = ?", id)
	if err := scanSong(row, &t); err != nil {
		return nil, mapError(err, "get song "+id)
	}
	return &t, nil
}

// ListSongs returns all songs, newest first.
func (s *Store) ListSongs(ctx context.Context) ([]track.Track, error) {
	return s.querySongs(ctx, "SELECT "+songColumns+" FROM songs s ORDER BY s.created_at DESC, s.id")
}

// SearchSongs returns songs whose title, artist or album contains query, newest first.
func (s *Store) SearchSongs(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListSongs(ctx)
	}

	pattern := "%" + escapeLike(query) + "%"
	return s.querySongs(ctx, "SELECT "+songColumns+` FROM songs s
		WHERE s.title LIKE ? ESCAPE '\' OR s.artist LIKE ? ESCAPE '\' OR s.album LIKE ? ESCAPE '\'
		ORDER BY s.created_at DESC, s.id`, pattern, pattern, pattern)
}

// DeleteSong deletes a song. Playlist entries and likes referencing it are removed with it.
func (s *Store) DeleteSong(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM songs WHERE id = ?", id)
	if err != nil {
		return mapError(err, "delete song")
	}
	return expectAffected(res, "delete song "+id)
}

func (s *Store) querySongs(ctx context.Context, query string, args ...any) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query songs")
	}
	defer rows.Close()

	songs := make([]track.Track, 0)
	for rows.Next() {
		var t track.Track
		if err := scanSong(rows, &t); err != nil {
			return nil, errors.Wrap(err, "failed to scan song")
		}
		songs = append(songs, t)
	}
	return songs, errors.Wrap(rows.Err(), "failed to iterate songs")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, what)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, what)
	}
	return nil
}
