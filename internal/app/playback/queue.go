package playback

import "github.com/osa030/melodystream/internal/domain/track"

// Queue is the ordered playback context with a cursor.
// The cursor is a valid index when the queue is non-empty and -1 otherwise.
type Queue struct {
	tracks []track.Track
	cursor int
}

// NewQueue builds a queue over a copy of the given tracks with the cursor on the first one.
func NewQueue(tracks []track.Track) *Queue {
	q := &Queue{
		tracks: make([]track.Track, len(tracks)),
		cursor: -1,
	}
	copy(q.tracks, tracks)
	if len(q.tracks) > 0 {
		q.cursor = 0
	}
	return q
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}

// Cursor returns the current index.
func (q *Queue) Cursor() int {
	return q.cursor
}

// Current returns the track under the cursor.
func (q *Queue) Current() (track.Track, bool) {
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[q.cursor], true
}

// IndexOf returns the index of the track with the given ID, or -1.
func (q *Queue) IndexOf(trackID string) int {
	for i, t := range q.tracks {
		if t.ID == trackID {
			return i
		}
	}
	return -1
}

// MoveTo places the cursor on index i. Out-of-range indexes are ignored.
func (q *Queue) MoveTo(i int) bool {
	if i < 0 || i >= len(q.tracks) {
		return false
	}
	q.cursor = i
	return true
}

// Step moves the cursor by delta, wrapping around both ends.
func (q *Queue) Step(delta int) int {
	n := len(q.tracks)
	if n == 0 {
		return -1
	}
	q.cursor = ((q.cursor+delta)%n + n) % n
	return q.cursor
}

// TrackIDs returns the identifiers in queue order.
func (q *Queue) TrackIDs() []string {
	return track.IDs(q.tracks)
}
