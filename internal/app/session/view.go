package session

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/melodystream/internal/app/playback"
	"github.com/osa030/melodystream/internal/domain/track"
)

// StateView is the wire form of a player snapshot.
type StateView struct {
	Status          string       `json:"status"`
	IsPlaying       bool         `json:"isPlaying"`
	Track           *track.Track `json:"currentSong"`
	CurrentTime     float64      `json:"currentTime"`
	Duration        float64      `json:"duration"`
	Progress        float64      `json:"progress"`
	Volume          int          `json:"volume"`
	Muted           bool         `json:"isMuted"`
	EffectiveVolume float64      `json:"effectiveVolume"`
	Shuffled        bool         `json:"isShuffled"`
	RepeatMode      string       `json:"repeatMode"`
	Like            string       `json:"like"`
	Cursor          int          `json:"queueIndex"`
	Queue           []string     `json:"queue"`
}

// NewStateView converts a snapshot.
func NewStateView(st playback.State) StateView {
	queue := st.QueueIDs
	if queue == nil {
		queue = []string{}
	}
	return StateView{
		Status:          st.Status.String(),
		IsPlaying:       st.Status == playback.StatusPlaying,
		Track:           st.Track,
		CurrentTime:     st.CurrentTime,
		Duration:        st.Duration,
		Progress:        st.Progress(),
		Volume:          st.Volume,
		Muted:           st.Muted,
		EffectiveVolume: st.EffectiveVolume(),
		Shuffled:        st.Shuffled,
		RepeatMode:      st.RepeatMode.String(),
		Like:            st.Like.String(),
		Cursor:          st.Cursor,
		Queue:           queue,
	}
}

// EventView is the wire form of a session event.
type EventView struct {
	Type    string `json:"type"`
	TrackID string `json:"trackId,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewEventView converts an event.
func NewEventView(ev playback.Event) EventView {
	v := EventView{Type: ev.Type.String(), TrackID: ev.TrackID}
	if ev.Err != nil {
		v.Code = ErrorCode(ev.Err)
		v.Error = ev.Err.Error()
	}
	return v
}

// ErrorView is the wire form of a rejected command.
type ErrorView struct {
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err  error
	code string
}{
	{playback.ErrLikeSyncFailure, "like_sync_failed"},
	{playback.ErrPlaybackResource, "playback_error"},
	{playback.ErrNoTrackLoaded, "no_track_loaded"},
	{playback.ErrInvalidSeekTarget, "invalid_seek_target"},
	{playback.ErrInvalidDuration, "invalid_duration"},
	{playback.ErrNotAuthenticated, "not_authenticated"},
	{playback.ErrNotPlaying, "not_playing"},
	{playback.ErrQueueEmpty, "queue_empty"},
	{playback.ErrTrackNotInQueue, "track_not_in_queue"},
	{playback.ErrSessionClosed, "session_closed"},
}

// ErrorCode returns a stable code for a player error.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
