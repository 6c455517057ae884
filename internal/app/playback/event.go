package playback

// EventType represents a session event type.
type EventType int

const (
	EventStateChanged   EventType = iota // Any observable state change
	EventTrackLoaded                     // A new current track was loaded
	EventTrackEnded                      // Current track reached its end
	EventQueueChanged                    // Queue was rebuilt
	EventLikeChanged                     // Like state of the current track changed
	EventLikeSyncFailed                  // Like/unlike call to the store failed
	EventPlaybackError                   // Media resource failed to load or play
	EventCommandRejected                 // A command could not be applied
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventTrackLoaded:
		return "track_loaded"
	case EventTrackEnded:
		return "track_ended"
	case EventQueueChanged:
		return "queue_changed"
	case EventLikeChanged:
		return "like_changed"
	case EventLikeSyncFailed:
		return "like_sync_failed"
	case EventPlaybackError:
		return "playback_error"
	case EventCommandRejected:
		return "command_rejected"
	default:
		return "unknown"
	}
}

// Event represents a session event.
type Event struct {
	Type    EventType
	TrackID string // Track the event refers to (empty for some events)
	State   State  // Snapshot taken when the event was emitted
	Err     error  // Set for failure events
}

// MediaEventType represents a notification from the media clock.
type MediaEventType int

const (
	MediaTick     MediaEventType = iota // Position update
	MediaDuration                       // Duration became known
	MediaEnded                          // Resource reached its end
	MediaError                          // Resource failed to load or play
)

// MediaEvent is a notification from the media element playing a track.
// TrackID ties the event to the track it was produced for.
type MediaEvent struct {
	Type    MediaEventType
	TrackID string
	Time    float64 // Seconds, for MediaTick and MediaDuration
	Message string  // For MediaError
}
