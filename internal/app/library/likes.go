package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/track"
)

// LikeStatus reports whether the user liked the song.
// Cached values are served first; cache failures fall back to the database.
func (s *Service) LikeStatus(ctx context.Context, userID, songID string) (bool, error) {
	if s.cache != nil {
		liked, ok, err := s.cache.Get(ctx, userID, songID)
		if err != nil {
			zlog.Warn().Msgf("like cache read failed: user=%s song=%s: %v", userID, songID, err)
		} else if ok {
			return liked, nil
		}
	}

	liked, err := s.repo.IsLiked(ctx, userID, songID)
	if err != nil {
		return false, translate(err)
	}
	s.cacheLike(ctx, userID, songID, liked)
	return liked, nil
}

// Like marks the song as liked by the user. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, userID, songID string) error {
	if userID == "" {
		return errors.Wrap(ErrForbidden, "anonymous users cannot like songs")
	}
	if err := s.repo.LikeSong(ctx, userID, songID); err != nil {
		s.forget(ctx, userID, songID)
		return translate(err)
	}
	s.cacheLike(ctx, userID, songID, true)

	zlog.Debug().Msgf("song liked: user=%s song=%s", userID, songID)
	return nil
}

// Unlike removes the like. Unliking a song that is not liked is a no-op.
func (s *Service) Unlike(ctx context.Context, userID, songID string) error {
	if userID == "" {
		return errors.Wrap(ErrForbidden, "anonymous users cannot unlike songs")
	}
	if err := s.repo.UnlikeSong(ctx, userID, songID); err != nil {
		s.forget(ctx, userID, songID)
		return translate(err)
	}
	s.cacheLike(ctx, userID, songID, false)

	zlog.Debug().Msgf("song unliked: user=%s song=%s", userID, songID)
	return nil
}

// ListLiked returns the user's liked songs, most recent first.
func (s *Service) ListLiked(ctx context.Context, userID string) ([]like.LikedSong, error) {
	liked, err := s.repo.ListLikedSongs(ctx, userID)
	return liked, translate(err)
}

// LikedTracks returns the user's liked songs as a playable queue.
func (s *Service) LikedTracks(ctx context.Context, userID string) ([]track.Track, error) {
	liked, err := s.ListLiked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return like.Tracks(liked), nil
}

func (s *Service) cacheLike(ctx context.Context, userID, songID string, liked bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, songID, liked); err != nil {
		zlog.Warn().Msgf("like cache write failed: user=%s song=%s: %v", userID, songID, err)
	}
}

func (s *Service) forget(ctx context.Context, userID, songID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID, songID); err != nil {
		zlog.Warn().Msgf("like cache invalidate failed: user=%s song=%s: %v", userID, songID, err)
	}
}
