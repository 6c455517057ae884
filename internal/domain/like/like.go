// Package like provides the LikedSong domain entity.
package like

import (
	"time"

	"github.com/osa030/melodystream/internal/domain/track"
)

// LikedSong records that a user liked a song.
type LikedSong struct {
	ID      string      `json:"id"`
	UserID  string      `json:"userId"`
	SongID  string      `json:"songId"`
	LikedAt time.Time   `json:"likedAt"`
	Song    track.Track `json:"song"`
}

// Status is the liked flag for one (user, song) pair.
type Status struct {
	IsLiked bool `json:"isLiked"`
}

// Tracks returns the liked songs in order.
func Tracks(liked []LikedSong) []track.Track {
	tracks := make([]track.Track, len(liked))
	for i, l := range liked {
		tracks[i] = l.Song
	}
	return tracks
}
