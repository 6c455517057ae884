package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/melodystream/internal/domain/track"
)

func TestPlaylist_CanView(t *testing.T) {
	tests := []struct {
		name     string
		playlist Playlist
		userID   string
		expected bool
	}{
		{
			name:     "owner can view private playlist",
			playlist: Playlist{OwnerID: "user-1"},
			userID:   "user-1",
			expected: true,
		},
		{
			name:     "other user cannot view private playlist",
			playlist: Playlist{OwnerID: "user-1"},
			userID:   "user-2",
			expected: false,
		},
		{
			name:     "anyone can view public playlist",
			playlist: Playlist{OwnerID: "user-1", IsPublic: true},
			userID:   "user-2",
			expected: true,
		},
		{
			name:     "empty user id never owns",
			playlist: Playlist{OwnerID: ""},
			userID:   "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.playlist.CanView(tt.userID))
		})
	}
}

func TestUpdate_Apply(t *testing.T) {
	name := "Road trip"
	public := true
	p := Playlist{Name: "Old", Description: "keep me"}

	Update{Name: &name, IsPublic: &public}.Apply(&p)

	assert.Equal(t, "Road trip", p.Name)
	assert.Equal(t, "keep me", p.Description)
	assert.True(t, p.IsPublic)
}

func TestEntries(t *testing.T) {
	entries := []Entry{
		{Position: 0, Song: track.Track{ID: "track-1", Duration: 200}},
		{Position: 4, Song: track.Track{ID: "track-2", Duration: 233}},
		{Position: 2, Song: track.Track{ID: "track-3", Duration: 285}},
	}

	assert.Equal(t, []string{"track-1", "track-2", "track-3"}, track.IDs(Tracks(entries)))
	assert.Equal(t, int64(718), TotalDuration(entries))
	assert.Equal(t, 5, NextPosition(entries))
	assert.Equal(t, 0, NextPosition(nil))
}
