// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/melodystream/internal/domain/track"
)

// Playlist represents a user-owned playlist.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"userId"`
	IsPublic    bool      `json:"isPublic"`
	CoverURL    string    `json:"coverImageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Entry is a song placed in a playlist at a position.
type Entry struct {
	ID         string      `json:"id"`
	PlaylistID string      `json:"playlistId"`
	SongID     string      `json:"songId"`
	Position   int         `json:"position"`
	AddedAt    time.Time   `json:"addedAt"`
	Song       track.Track `json:"song"`
}

// Update holds the mutable playlist fields. Nil fields are left unchanged.
type Update struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
	CoverURL    *string `json:"coverImageUrl,omitempty"`
}

// Apply copies the non-nil fields onto the playlist.
func (u Update) Apply(p *Playlist) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.IsPublic != nil {
		p.IsPublic = *u.IsPublic
	}
	if u.CoverURL != nil {
		p.CoverURL = *u.CoverURL
	}
}

// IsOwnedBy reports whether the user owns the playlist.
func (p *Playlist) IsOwnedBy(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

// CanView reports whether the user may read the playlist.
func (p *Playlist) CanView(userID string) bool {
	return p.IsPublic || p.IsOwnedBy(userID)
}

// Tracks returns the songs of the entries in order.
func Tracks(entries []Entry) []track.Track {
	tracks := make([]track.Track, len(entries))
	for i, e := range entries {
		tracks[i] = e.Song
	}
	return tracks
}

// TotalDuration returns the total duration of all entries in seconds.
func TotalDuration(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += int64(e.Song.Duration)
	}
	return total
}

// NextPosition returns the position that appends after the last entry.
func NextPosition(entries []Entry) int {
	next := 0
	for _, e := range entries {
		if e.Position >= next {
			next = e.Position + 1
		}
	}
	return next
}
