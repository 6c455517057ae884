package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SongDurationConfig represents the configuration for SongDurationFilter.
type SongDurationConfig struct {
	MinDurationSec int `yaml:"min_duration_sec" mapstructure:"min_duration_sec" validate:"gte=0"`
	MaxDurationSec int `yaml:"max_duration_sec" mapstructure:"max_duration_sec" validate:"gte=0"`
}

// SongDurationFilter checks if the song duration is within allowed limits.
type SongDurationFilter struct {
	config *SongDurationConfig
}

// NewSongDurationFilter creates a new song duration filter.
func NewSongDurationFilter() *SongDurationFilter {
	return &SongDurationFilter{}
}

func (f *SongDurationFilter) Name() string {
	return "song_duration_filter"
}

func (f *SongDurationFilter) Description() string {
	return "Checks if song duration is within allowed limits"
}

func (f *SongDurationFilter) ReturnCodes() []string {
	return []string{"song_duration_exceeded"}
}

func (f *SongDurationFilter) ValidateConfig(settings map[string]any) error {
	var config SongDurationConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	// 0 means no upper limit
	if config.MaxDurationSec > 0 && config.MinDurationSec > config.MaxDurationSec {
		return errors.New("min_duration_sec cannot be greater than max_duration_sec")
	}

	f.config = &config
	zlog.Info().Msgf("song duration filter config: %+v", config)
	return nil
}

func (f *SongDurationFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser
}

func (f *SongDurationFilter) Check(ctx context.Context, req AddRequest) Result {
	if f.config == nil {
		return Accept()
	}

	d := req.Song.Duration
	if d < f.config.MinDurationSec {
		return Reject("song_duration_exceeded")
	}
	if f.config.MaxDurationSec > 0 && d > f.config.MaxDurationSec {
		return Reject("song_duration_exceeded")
	}
	return Accept()
}

func init() {
	Register("song_duration_filter", func() Filter {
		return &SongDurationFilter{}
	})
}
