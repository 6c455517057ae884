// Package playback provides the player session state machine with integrated queue management.
package playback

import "github.com/osa030/melodystream/internal/domain/track"

// Status represents the transport status.
type Status int

const (
	StatusIdle    Status = iota // No track loaded, or track ended without repeat
	StatusPlaying               // Track is playing
	StatusPaused                // Track is loaded and paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode represents the end-of-track policy.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Stop at end of track
	RepeatAll                    // Advance through the queue, wrapping
	RepeatOne                    // Restart the same track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the following mode in the cycle none -> all -> one -> none.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// LikeState is the cached liked flag of the current track.
type LikeState int

const (
	LikeUnknown  LikeState = iota // Not resolved yet
	LikeLiked                     // Liked by the user
	LikeNotLiked                  // Not liked by the user
)

// String returns the string representation of the like state.
func (l LikeState) String() string {
	switch l {
	case LikeUnknown:
		return "unknown"
	case LikeLiked:
		return "liked"
	case LikeNotLiked:
		return "not_liked"
	default:
		return "unknown"
	}
}

// IsLiked reports whether the state is LikeLiked.
func (l LikeState) IsLiked() bool {
	return l == LikeLiked
}

func likeStateOf(liked bool) LikeState {
	if liked {
		return LikeLiked
	}
	return LikeNotLiked
}

// State is an immutable snapshot of a session.
type State struct {
	Status      Status
	Track       *track.Track // Current track (nil when none loaded)
	CurrentTime float64      // Seconds
	Duration    float64      // Seconds, 0 when unknown
	Volume      int          // 0-100
	Muted       bool
	Shuffled    bool
	RepeatMode  RepeatMode
	Like        LikeState
	Cursor      int // Queue cursor, -1 when the queue is empty
	QueueIDs    []string
}

// EffectiveVolume returns the audio level in [0,1].
func (s State) EffectiveVolume() float64 {
	if s.Muted {
		return 0
	}
	return float64(s.Volume) / 100
}

// Progress returns currentTime/duration in [0,1], or 0 when duration is unknown.
func (s State) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.CurrentTime / s.Duration
}
