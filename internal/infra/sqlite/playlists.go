package sqlite

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/melodystream/internal/domain/playlist"
)

const playlistColumns = `id, name, COALESCE(description, ''), user_id, is_public, COALESCE(cover_image_url, ''),
	created_at, updated_at`

func scanPlaylist(row scanner) (*playlist.Playlist, error) {
	var p playlist.Playlist
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.IsPublic, &p.CoverURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlaylist inserts a playlist.
func (s *Store) CreatePlaylist(ctx context.Context, p *playlist.Playlist) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playlists (id, name, description, user_id, is_public, cover_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullString(p.Description), p.OwnerID, p.IsPublic, nullString(p.CoverURL), p.CreatedAt, p.UpdatedAt,
	)
	return mapError(err, "create playlist")
}

// GetPlaylist returns the playlist with the given ID.
func (s *Store) GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	p, err := scanPlaylist(s.db.QueryRowContext(ctx, "SELECT "+playlistColumns+" FROM playlists WHERE id = ?", id))
	if err != nil {
		return nil, mapError(err, "get playlist "+id)
	}
	return p, nil
}

// ListPlaylistsByOwner returns the user's playlists, most recently updated first.
func (s *Store) ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]playlist.Playlist, error) {
	return s.queryPlaylists(ctx,
		"SELECT "+playlistColumns+" FROM playlists WHERE user_id = ? ORDER BY updated_at DESC, id", ownerID)
}

// ListPublicPlaylists returns public playlists of other users, most recently updated first.
func (s *Store) ListPublicPlaylists(ctx context.Context, excludeOwnerID string) ([]playlist.Playlist, error) {
	return s.queryPlaylists(ctx,
		"SELECT "+playlistColumns+" FROM playlists WHERE is_public AND user_id <> ? ORDER BY updated_at DESC, id",
		excludeOwnerID)
}

// ListAllPlaylists returns every playlist ordered by creation time.
func (s *Store) ListAllPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	return s.queryPlaylists(ctx, "SELECT "+playlistColumns+" FROM playlists ORDER BY created_at, id")
}

// UpdatePlaylist stores the mutable fields of p and refreshes its update time.
func (s *Store) UpdatePlaylist(ctx context.Context, p *playlist.Playlist) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE playlists SET name = ?, description = ?, is_public = ?, cover_image_url = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, nullString(p.Description), p.IsPublic, nullString(p.CoverURL), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return mapError(err, "update playlist")
	}
	return expectAffected(res, "update playlist "+p.ID)
}

// DeletePlaylist deletes a playlist and its entries.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return mapError(err, "delete playlist")
	}
	return expectAffected(res, "delete playlist "+id)
}

// ListEntries returns the songs of a playlist ordered by position.
func (s *Store) ListEntries(ctx context.Context, playlistID string) ([]playlist.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.id, ps.playlist_id, ps.song_id, ps.position, ps.added_at, `+songColumns+`
		FROM playlist_songs ps
		JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = ?
		ORDER BY ps.position, ps.added_at`, playlistID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlist entries")
	}
	defer rows.Close()

	entries := make([]playlist.Entry, 0)
	for rows.Next() {
		var e playlist.Entry
		if err := scanSong(rows, &e.Song, &e.ID, &e.PlaylistID, &e.SongID, &e.Position, &e.AddedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist entry")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate playlist entries")
}

// AddEntry places a song in a playlist. A song appears at most once per playlist.
func (s *Store) AddEntry(ctx context.Context, e *playlist.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(ctx context.Context, tx execer) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO playlist_songs (id, playlist_id, song_id, position, added_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.PlaylistID, e.SongID, e.Position, e.AddedAt,
		)
		if err != nil {
			return mapError(err, "add song to playlist")
		}
		return touchPlaylist(ctx, tx, e.PlaylistID, e.AddedAt)
	})
}

// RemoveEntry removes a song from a playlist.
func (s *Store) RemoveEntry(ctx context.Context, playlistID, songID string) error {
	return s.withTx(ctx, func(ctx context.Context, tx execer) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id = ?",
			playlistID, songID)
		if err != nil {
			return mapError(err, "remove song from playlist")
		}
		if err := expectAffected(res, "remove song "+songID+" from playlist "+playlistID); err != nil {
			return err
		}
		return touchPlaylist(ctx, tx, playlistID, time.Now().UTC())
	})
}

func touchPlaylist(ctx context.Context, tx execer, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE playlists SET updated_at = ? WHERE id = ?", at, id)
	return errors.Wrap(err, "failed to touch playlist")
}

func (s *Store) queryPlaylists(ctx context.Context, query string, args ...any) ([]playlist.Playlist, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlists")
	}
	defer rows.Close()

	playlists := make([]playlist.Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist")
		}
		playlists = append(playlists, *p)
	}
	return playlists, errors.Wrap(rows.Err(), "failed to iterate playlists")
}
