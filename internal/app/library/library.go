// Package library provides the catalog, playlist, like and account services.
package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
	"github.com/osa030/melodystream/internal/infra/config"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

// Errors
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RejectedError is returned when the filter chain rejects a playlist addition.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Code
}

// Repository is the persistent store used by the service.
type Repository interface {
	CreateSong(ctx context.Context, t *track.Track) error
	GetSong(ctx context.Context, id string) (*track.Track, error)
	ListSongs(ctx context.Context) ([]track.Track, error)
	SearchSongs(ctx context.Context, query string) ([]track.Track, error)
	DeleteSong(ctx context.Context, id string) error

	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByLogin(ctx context.Context, identifier string) (*user.User, error)

	CreatePlaylist(ctx context.Context, p *playlist.Playlist) error
	GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error)
	ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]playlist.Playlist, error)
	ListPublicPlaylists(ctx context.Context, excludeOwnerID string) ([]playlist.Playlist, error)
	UpdatePlaylist(ctx context.Context, p *playlist.Playlist) error
	DeletePlaylist(ctx context.Context, id string) error
	ListEntries(ctx context.Context, playlistID string) ([]playlist.Entry, error)
	AddEntry(ctx context.Context, e *playlist.Entry) error
	RemoveEntry(ctx context.Context, playlistID, songID string) error

	LikeSong(ctx context.Context, userID, songID string) error
	UnlikeSong(ctx context.Context, userID, songID string) error
	IsLiked(ctx context.Context, userID, songID string) (bool, error)
	ListLikedSongs(ctx context.Context, userID string) ([]like.LikedSong, error)
}

// LikeCache caches like status. Implementations must be safe for concurrent use.
type LikeCache interface {
	Get(ctx context.Context, userID, songID string) (liked bool, ok bool, err error)
	Set(ctx context.Context, userID, songID string, liked bool) error
	Invalidate(ctx context.Context, userID, songID string) error
}

// Service implements the library use cases.
type Service struct {
	repo     Repository
	cache    LikeCache // nil disables caching
	chain    *filter.Chain
	messages func(code string) string
}

// NewService creates a service. cache may be nil.
func NewService(repo Repository, cfg *config.Config, cache LikeCache) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache,
		chain:    filter.NewChain(),
		messages: cfg.GetMessage,
	}
	s.setupFilters(cfg)
	return s
}

// setupFilters initializes the playlist filter chain.
func (s *Service) setupFilters(cfg *config.Config) {
	// PlaylistOwnerFilter is always on
	s.chain.Add(&filter.PlaylistOwnerFilter{})

	// DuplicateSongFilter
	if cfg.IsFilterEnabled("duplicate_song_filter") {
		s.chain.Add(filter.NewDuplicateSongFilter())
	}

	// PlaylistSizeFilter
	if cfg.IsFilterEnabled("playlist_size_filter") {
		f := filter.NewPlaylistSizeFilter()
		if err := f.ValidateConfig(cfg.GetFilterSettings("playlist_size_filter")); err != nil {
			zlog.Error().Msgf("failed to validate playlist size filter config: %v", err)
		} else {
			s.chain.Add(f)
		}
	}

	// SongDurationFilter
	if cfg.IsFilterEnabled("song_duration_filter") {
		f := filter.NewSongDurationFilter()
		if err := f.ValidateConfig(cfg.GetFilterSettings("song_duration_filter")); err != nil {
			zlog.Error().Msgf("failed to validate song duration filter config: %v", err)
		} else {
			s.chain.Add(f)
		}
	}
}

// Filters returns the active filter chain.
func (s *Service) Filters() []filter.Filter {
	return s.chain.Filters()
}

// translate marks storage errors with the service sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sqlite.ErrNotFound):
		return errors.Mark(err, ErrNotFound)
	case errors.Is(err, sqlite.ErrConflict):
		return errors.Mark(err, ErrConflict)
	default:
		return err
	}
}

func invalid(err error) error {
	return errors.Mark(err, ErrInvalidInput)
}
