package library

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/domain/track"
)

// Actor is the caller of a service operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// ListSongs returns the catalog, newest first.
func (s *Service) ListSongs(ctx context.Context) ([]track.Track, error) {
	songs, err := s.repo.ListSongs(ctx)
	return songs, translate(err)
}

// SearchSongs returns songs matching query in title, artist or album.
func (s *Service) SearchSongs(ctx context.Context, query string) ([]track.Track, error) {
	songs, err := s.repo.SearchSongs(ctx, strings.TrimSpace(query))
	return songs, translate(err)
}

// GetSong returns a song by ID.
func (s *Service) GetSong(ctx context.Context, id string) (*track.Track, error) {
	song, err := s.repo.GetSong(ctx, id)
	return song, translate(err)
}

// CreateSong adds a song to the catalog. Admin only.
func (s *Service) CreateSong(ctx context.Context, actor Actor, t track.Track) (*track.Track, error) {
	if !actor.IsAdmin {
		return nil, errors.Wrap(ErrForbidden, "only admins can add songs")
	}

	t.Title = strings.TrimSpace(t.Title)
	t.Artist = strings.TrimSpace(t.Artist)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	if err := t.Validate(); err != nil {
		return nil, invalid(err)
	}

	if err := s.repo.CreateSong(ctx, &t); err != nil {
		return nil, translate(err)
	}

	zlog.Info().Msgf("song created: id=%s title=%q artist=%q", t.ID, t.Title, t.Artist)
	return &t, nil
}

// DeleteSong removes a song from the catalog. Admin only.
func (s *Service) DeleteSong(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin {
		return errors.Wrap(ErrForbidden, "only admins can delete songs")
	}
	if err := s.repo.DeleteSong(ctx, id); err != nil {
		return translate(err)
	}

	zlog.Info().Msgf("song deleted: id=%s", id)
	return nil
}
