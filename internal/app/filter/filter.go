// Package filter provides the filter chain that validates songs added to playlists.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
)

// Origin identifies who is adding a song.
type Origin int

const (
	OriginUser   Origin = iota // Request from an authenticated user through the API
	OriginSystem               // Seeding and imports from the admin CLI
)

// AddRequest is a request to add a song to a playlist.
type AddRequest struct {
	UserID   string
	Playlist playlist.Playlist
	Entries  []playlist.Entry // Current entries of the playlist
	Song     track.Track
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "not_playlist_owner", "duplicate_song", "playlist_full"
	Filter   string // Name of the rejecting filter, set by Chain
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for playlist filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to requests of the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req AddRequest) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
