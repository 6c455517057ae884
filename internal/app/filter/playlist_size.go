package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// PlaylistSizeConfig represents the configuration for PlaylistSizeFilter.
type PlaylistSizeConfig struct {
	MaxSongs int `yaml:"max_songs" mapstructure:"max_songs" default:"500" validate:"gte=1"`
}

// PlaylistSizeFilter caps the number of songs in a playlist.
type PlaylistSizeFilter struct {
	config *PlaylistSizeConfig
}

// NewPlaylistSizeFilter creates a new playlist size filter.
func NewPlaylistSizeFilter() *PlaylistSizeFilter {
	return &PlaylistSizeFilter{}
}

func (f *PlaylistSizeFilter) Name() string {
	return "playlist_size_filter"
}

func (f *PlaylistSizeFilter) Description() string {
	return "Rejects songs added to a playlist that already holds max_songs songs"
}

func (f *PlaylistSizeFilter) ReturnCodes() []string {
	return []string{"playlist_full"}
}

func (f *PlaylistSizeFilter) ValidateConfig(settings map[string]any) error {
	var config PlaylistSizeConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("playlist size filter config: %+v", config)
	return nil
}

func (f *PlaylistSizeFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser
}

func (f *PlaylistSizeFilter) Check(ctx context.Context, req AddRequest) Result {
	if f.config == nil {
		return Accept()
	}
	if len(req.Entries) >= f.config.MaxSongs {
		return Reject("playlist_full")
	}
	return Accept()
}

func init() {
	Register("playlist_size_filter", func() Filter {
		return &PlaylistSizeFilter{}
	})
}
