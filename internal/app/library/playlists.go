package library

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
)

var validate = validator.New()

// CreatePlaylistRequest holds the fields of a new playlist.
type CreatePlaylistRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPublic    bool   `json:"isPublic"`
	CoverURL    string `json:"coverImageUrl" validate:"omitempty,url"`
}

// PlaylistDetail is a playlist with its songs.
type PlaylistDetail struct {
	playlist.Playlist
	Songs         []playlist.Entry `json:"songs"`
	TotalDuration int64            `json:"totalDuration"`
}

// ListPlaylists returns the actor's playlists, most recently updated first.
func (s *Service) ListPlaylists(ctx context.Context, actor Actor) ([]playlist.Playlist, error) {
	playlists, err := s.repo.ListPlaylistsByOwner(ctx, actor.UserID)
	return playlists, translate(err)
}

// ListPublicPlaylists returns public playlists of other users.
func (s *Service) ListPublicPlaylists(ctx context.Context, actor Actor) ([]playlist.Playlist, error) {
	playlists, err := s.repo.ListPublicPlaylists(ctx, actor.UserID)
	return playlists, translate(err)
}

// CreatePlaylist creates a playlist owned by the actor.
func (s *Service) CreatePlaylist(ctx context.Context, actor Actor, req CreatePlaylistRequest) (*playlist.Playlist, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, invalid(errors.Wrap(err, "invalid playlist"))
	}

	now := time.Now().UTC()
	p := &playlist.Playlist{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     actor.UserID,
		IsPublic:    req.IsPublic,
		CoverURL:    req.CoverURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreatePlaylist(ctx, p); err != nil {
		return nil, translate(err)
	}

	zlog.Info().Msgf("playlist created: id=%s owner=%s name=%q", p.ID, p.OwnerID, p.Name)
	return p, nil
}

// GetPlaylist returns a playlist with its songs.
// Private playlists of other users are reported as not found.
func (s *Service) GetPlaylist(ctx context.Context, actor Actor, id string) (*PlaylistDetail, error) {
	p, err := s.viewable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	return &PlaylistDetail{
		Playlist:      *p,
		Songs:         entries,
		TotalDuration: playlist.TotalDuration(entries),
	}, nil
}

// PlaylistTracks returns the songs of a playlist in order.
func (s *Service) PlaylistTracks(ctx context.Context, actor Actor, id string) ([]track.Track, error) {
	detail, err := s.GetPlaylist(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return playlist.Tracks(detail.Songs), nil
}

// UpdatePlaylist applies upd to a playlist owned by the actor.
func (s *Service) UpdatePlaylist(ctx context.Context, actor Actor, id string, upd playlist.Update) (*playlist.Playlist, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(p)
	req := CreatePlaylistRequest{
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		IsPublic:    p.IsPublic,
		CoverURL:    p.CoverURL,
	}
	if err := validate.Struct(req); err != nil {
		return nil, invalid(errors.Wrap(err, "invalid playlist"))
	}
	p.Name = req.Name

	if err := s.repo.UpdatePlaylist(ctx, p); err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// DeletePlaylist deletes a playlist owned by the actor.
func (s *Service) DeletePlaylist(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeletePlaylist(ctx, id); err != nil {
		return translate(err)
	}

	zlog.Info().Msgf("playlist deleted: id=%s", id)
	return nil
}

// AddSong adds a song to a playlist after running the filter chain.
// A nil position appends the song at the end.
func (s *Service) AddSong(ctx context.Context, actor Actor, playlistID, songID string, position *int, origin filter.Origin) (*playlist.Entry, error) {
	var (
		p   *playlist.Playlist
		err error
	)
	if origin == filter.OriginSystem {
		p, err = s.repo.GetPlaylist(ctx, playlistID)
		err = translate(err)
	} else {
		p, err = s.viewable(ctx, actor, playlistID)
	}
	if err != nil {
		return nil, err
	}

	song, err := s.repo.GetSong(ctx, songID)
	if err != nil {
		return nil, translate(err)
	}

	entries, err := s.repo.ListEntries(ctx, playlistID)
	if err != nil {
		return nil, translate(err)
	}

	req := filter.AddRequest{
		UserID:   actor.UserID,
		Playlist: *p,
		Entries:  entries,
		Song:     *song,
	}
	if result := s.chain.Execute(ctx, req, origin); !result.Accepted {
		zlog.Info().Msgf("playlist add rejected: playlist=%s song=%s filter=%s code=%s",
			playlistID, songID, result.Filter, result.Code)
		return nil, &RejectedError{Code: result.Code, Message: s.messages(result.Code)}
	}

	e := &playlist.Entry{
		PlaylistID: playlistID,
		SongID:     songID,
		Position:   playlist.NextPosition(entries),
		Song:       *song,
	}
	if position != nil {
		if *position < 0 {
			return nil, errors.Wrap(ErrInvalidInput, "position must be non-negative")
		}
		e.Position = *position
	}

	if err := s.repo.AddEntry(ctx, e); err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// RemoveSong removes a song from a playlist owned by the actor.
func (s *Service) RemoveSong(ctx context.Context, actor Actor, playlistID, songID string) error {
	if _, err := s.owned(ctx, actor, playlistID); err != nil {
		return err
	}
	return translate(s.repo.RemoveEntry(ctx, playlistID, songID))
}

func (s *Service) viewable(ctx context.Context, actor Actor, id string) (*playlist.Playlist, error) {
	p, err := s.repo.GetPlaylist(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !p.CanView(actor.UserID) {
		return nil, errors.Wrapf(ErrNotFound, "playlist %s", id)
	}
	return p, nil
}

func (s *Service) owned(ctx context.Context, actor Actor, id string) (*playlist.Playlist, error) {
	p, err := s.viewable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !p.IsOwnedBy(actor.UserID) {
		return nil, errors.Wrapf(ErrForbidden, "playlist %s is owned by another user", id)
	}
	return p, nil
}
