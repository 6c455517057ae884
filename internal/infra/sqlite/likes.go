package sqlite

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/melodystream/internal/domain/like"
)

// LikeSong records that the user likes the song. Liking twice is a no-op.
func (s *Store) LikeSong(ctx context.Context, userID, songID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO liked_songs (id, user_id, song_id, liked_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, song_id) DO NOTHING`,
		uuid.NewString(), userID, songID, time.Now().UTC(),
	)
	return mapError(err, "like song "+songID)
}

// UnlikeSong removes the like. Unliking a song that is not liked is a no-op.
func (s *Store) UnlikeSong(ctx context.Context, userID, songID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM liked_songs WHERE user_id = ? AND song_id = ?", userID, songID)
	return mapError(err, "unlike song "+songID)
}

// IsLiked reports whether the user likes the song.
func (s *Store) IsLiked(ctx context.Context, userID, songID string) (bool, error) {
	var liked bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM liked_songs WHERE user_id = ? AND song_id = ?)", userID, songID).Scan(&liked)
	if err != nil {
		return false, errors.Wrap(err, "failed to query like status")
	}
	return liked, nil
}

// ListLikedSongs returns the user's liked songs, most recently liked first.
func (s *Store) ListLikedSongs(ctx context.Context, userID string) ([]like.LikedSong, error) {
	return s.queryLikes(ctx, `
		SELECT l.id, l.user_id, l.song_id, l.liked_at, `+songColumns+`
		FROM liked_songs l
		JOIN songs s ON s.id = l.song_id
		WHERE l.user_id = ?
		ORDER BY l.liked_at DESC, l.id`, userID)
}

// ListAllLikes returns every like ordered by time.
func (s *Store) ListAllLikes(ctx context.Context) ([]like.LikedSong, error) {
	return s.queryLikes(ctx, `
		SELECT l.id, l.user_id, l.song_id, l.liked_at, `+songColumns+`
		FROM liked_songs l
		JOIN songs s ON s.id = l.song_id
		ORDER BY l.liked_at, l.id`)
}

func (s *Store) queryLikes(ctx context.Context, query string, args ...any) ([]like.LikedSong, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query liked songs")
	}
	defer rows.Close()

	liked := make([]like.LikedSong, 0)
	for rows.Next() {
		var l like.LikedSong
		if err := scanSong(rows, &l.Song, &l.ID, &l.UserID, &l.SongID, &l.LikedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan liked song")
		}
		liked = append(liked, l)
	}
	return liked, errors.Wrap(rows.Err(), "failed to iterate liked songs")
}
