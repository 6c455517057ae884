// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Track represents a song in the catalog.
// Tracks are immutable once created; the player only borrows them.
type Track struct {
	ID        string    `json:"id"`
	Title     string    `json:"title" validate:"required,max=200"`
	Artist    string    `json:"artist" validate:"required,max=200"`
	Album     string    `json:"album,omitempty" validate:"max=200"`
	Duration  int       `json:"duration" validate:"gte=0"` // Duration in seconds
	AudioURL  string    `json:"audioUrl" validate:"required,url"`
	CoverURL  string    `json:"coverImageUrl,omitempty" validate:"omitempty,url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the track fields.
func (t *Track) Validate() error {
	if err := validate.Struct(t); err != nil {
		return errors.Wrap(err, "invalid track")
	}
	return nil
}

// DurationTime returns the duration as a time.Duration.
func (t *Track) DurationTime() time.Duration {
	return time.Duration(t.Duration) * time.Second
}

// Matches reports whether the query appears in the title, artist or album (case-insensitive).
func (t *Track) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Artist), q) ||
		strings.Contains(strings.ToLower(t.Album), q)
}

// IDs returns the identifiers of the given tracks, in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
