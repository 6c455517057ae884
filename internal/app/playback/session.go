package playback

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/domain/track"
)

// Errors
var (
	ErrNoTrackLoaded     = errors.New("no track loaded")
	ErrInvalidSeekTarget = errors.New("invalid seek target")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrLikeSyncFailure   = errors.New("like sync failed")
	ErrPlaybackResource  = errors.New("playback resource error")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotPlaying        = errors.New("not playing")
	ErrQueueEmpty        = errors.New("queue is empty")
	ErrTrackNotInQueue   = errors.New("track not in queue")
	ErrSessionClosed     = errors.New("session closed")
)

// Store is the catalog and like store a session reads from.
// Like and Unlike are the only mutations a session performs.
type Store interface {
	ListSongs(ctx context.Context) ([]track.Track, error)
	LikeStatus(ctx context.Context, userID, trackID string) (bool, error)
	Like(ctx context.Context, userID, trackID string) error
	Unlike(ctx context.Context, userID, trackID string) error
}

// Config holds session configuration.
type Config struct {
	UserID        string          // Authenticated user, empty for anonymous sessions
	DefaultVolume int             // Initial volume (0-100)
	EventBuffer   int             // Size of the event channel
	StoreTimeout  time.Duration   // Timeout for each store call
	Rand          func(n int) int // Returns a uniform index in [0,n); used by shuffle
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		DefaultVolume: 70,
		EventBuffer:   64,
		StoreTimeout:  10 * time.Second,
		Rand:          rand.IntN,
	}
}

// Session is a single user's player: current track, transport, queue navigation,
// volume and the like state of the current track.
type Session struct {
	mu sync.Mutex

	config Config
	store  Store

	// Queue and current track
	queue   *Queue
	current *track.Track
	onQueue bool   // current is the track under the cursor
	loadGen uint64 // Incremented on every load

	// Transport
	status      Status
	currentTime float64
	duration    float64

	// Modes
	volume   int
	muted    bool
	shuffled bool
	repeat   RepeatMode

	// Like synchronization
	like       LikeState
	likeSeq    uint64            // Issuance counter for like/unlike requests
	latestLike map[string]uint64 // Track ID -> seq of the latest issued request
	confirmed  map[string]bool   // Track ID -> last value confirmed by the store

	lastErr error

	// Store jobs, run one at a time in issuance order
	jobsMu     sync.Mutex
	jobs       []func(ctx context.Context)
	wake       chan struct{}
	workerDone chan struct{}

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewSession creates a session in the idle state with an empty queue.
func NewSession(store Store, config Config) *Session {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 10 * time.Second
	}
	if config.Rand == nil {
		config.Rand = rand.IntN
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:     config,
		store:      store,
		queue:      NewQueue(nil),
		status:     StatusIdle,
		volume:     clampVolume(config.DefaultVolume),
		repeat:     RepeatNone,
		like:       LikeUnknown,
		latestLike: make(map[string]uint64),
		confirmed:  make(map[string]bool),
		wake:       make(chan struct{}, 1),
		workerDone: make(chan struct{}),
		eventCh:    make(chan Event, config.EventBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}

	go s.runWorker()
	return s
}

// Events returns the event channel. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// UserID returns the user the session belongs to.
func (s *Session) UserID() string {
	return s.config.UserID
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastError returns the most recent error reported by the session, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// EffectiveVolume returns the audio level in [0,1].
func (s *Session) EffectiveVolume() float64 {
	return s.Snapshot().EffectiveVolume()
}

// SetQueue rebuilds the queue from the given tracks.
// The current track is kept; the cursor follows it when it is part of the new queue.
// Otherwise the next Next starts the new queue from its first track.
func (s *Session) SetQueue(tracks []track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.queue = NewQueue(tracks)
	s.onQueue = false
	if s.current != nil {
		if i := s.queue.IndexOf(s.current.ID); i >= 0 {
			s.queue.MoveTo(i)
			s.onQueue = true
		}
	}

	s.emitLocked(EventQueueChanged, "", nil)
	return nil
}

// RefreshQueue rebuilds the queue from the store's song list.
func (s *Session) RefreshQueue(ctx context.Context) error {
	songs, err := s.store.ListSongs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list songs")
	}
	return s.SetQueue(songs)
}

// Load makes t the current track, paused at 0.
// If t is part of the queue the cursor moves to it.
func (s *Session) Load(t track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if t.Duration < 0 {
		return s.rejectLocked(errors.Wrapf(ErrInvalidDuration, "track %s has negative duration", t.ID))
	}

	i := s.queue.IndexOf(t.ID)
	s.onQueue = s.queue.MoveTo(i)
	s.loadLocked(t)
	return nil
}

// LoadByID loads the queued track with the given ID and optionally starts playing it.
func (s *Session) LoadByID(trackID string, autoplay bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	i := s.queue.IndexOf(trackID)
	if i < 0 {
		return s.rejectLocked(errors.Wrapf(ErrTrackNotInQueue, "track %s", trackID))
	}
	s.queue.MoveTo(i)
	s.onQueue = true
	t, _ := s.queue.Current()
	s.loadLocked(t)
	if autoplay {
		s.playLocked()
	}
	return nil
}

// Play starts or resumes playback of the current track.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return s.rejectLocked(ErrNoTrackLoaded)
	}
	s.playLocked()
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return s.rejectLocked(ErrNoTrackLoaded)
	}
	if s.status != StatusPlaying {
		return ErrNotPlaying
	}
	s.pauseLocked()
	return nil
}

// Toggle plays when not playing, pauses otherwise.
func (s *Session) Toggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return s.rejectLocked(ErrNoTrackLoaded)
	}
	if s.status == StatusPlaying {
		s.pauseLocked()
	} else {
		s.playLocked()
	}
	return nil
}

// Seek moves to fraction x duration. The fraction is clamped to [0,1].
// Status is not changed.
func (s *Session) Seek(fraction float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return s.rejectLocked(ErrNoTrackLoaded)
	}
	if s.duration <= 0 {
		return s.rejectLocked(errors.Wrap(ErrInvalidSeekTarget, "duration unknown"))
	}

	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	s.currentTime = fraction * s.duration
	s.emitLocked(EventStateChanged, s.current.ID, nil)
	return nil
}

// Tick reports the media clock position of the current track.
func (s *Session) Tick(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.tickLocked(seconds)
}

// SetDuration records the duration reported by the media resource.
func (s *Session) SetDuration(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.setDurationLocked(seconds)
}

// Ended reports that the media resource reached its end.
func (s *Session) Ended() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.endedLocked()
}

// MediaFailed reports that the media resource of the current track failed.
// The session goes idle and does not retry or advance.
func (s *Session) MediaFailed(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.mediaFailedLocked(message)
}

// HandleMediaEvent applies a media clock event.
// Events produced for another track than the current one are dropped.
func (s *Session) HandleMediaEvent(ev MediaEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if ev.TrackID != "" && (s.current == nil || s.current.ID != ev.TrackID) {
		zlog.Debug().Msgf("playback: dropping stale media event: type=%d track=%s", ev.Type, ev.TrackID)
		return nil
	}

	switch ev.Type {
	case MediaTick:
		return s.tickLocked(ev.Time)
	case MediaDuration:
		return s.setDurationLocked(ev.Time)
	case MediaEnded:
		return s.endedLocked()
	case MediaError:
		return s.mediaFailedLocked(ev.Message)
	default:
		return errors.Newf("unknown media event type %d", ev.Type)
	}
}

// Next loads and plays the next track of the queue.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.advanceLocked(1)
}

// Previous loads and plays the previous track of the queue.
// Under shuffle this picks a random track; it is not an undo of Next.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.advanceLocked(-1)
}

// ToggleShuffle flips shuffle mode and returns the new value.
func (s *Session) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shuffled = !s.shuffled
	s.emitLocked(EventStateChanged, s.currentIDLocked(), nil)
	return s.shuffled
}

// CycleRepeat advances the repeat mode and returns the new value.
func (s *Session) CycleRepeat() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeat = s.repeat.Next()
	s.emitLocked(EventStateChanged, s.currentIDLocked(), nil)
	return s.repeat
}

// SetVolume sets the volume clamped to [0,100] and unmutes. It returns the applied volume.
func (s *Session) SetVolume(v int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clampVolume(v)
	s.muted = false
	s.emitLocked(EventStateChanged, s.currentIDLocked(), nil)
	return s.volume
}

// ToggleMute flips mute and returns the new value. Volume is left untouched.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.muted = !s.muted
	s.emitLocked(EventStateChanged, s.currentIDLocked(), nil)
	return s.muted
}

// ToggleLike flips the like state of the current track optimistically and
// sends the matching like/unlike request to the store.
// Requests are sent one at a time in the order they were issued; a failure rolls
// the state back to the last value the store confirmed.
func (s *Session) ToggleLike() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return s.rejectLocked(ErrNoTrackLoaded)
	}
	if s.config.UserID == "" {
		return s.rejectLocked(ErrNotAuthenticated)
	}

	trackID := s.current.ID
	want := !s.like.IsLiked()

	s.likeSeq++
	seq := s.likeSeq
	s.latestLike[trackID] = seq

	s.like = likeStateOf(want)
	s.emitLocked(EventLikeChanged, trackID, nil)

	userID := s.config.UserID
	s.enqueueLocked(func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
		defer cancel()

		var err error
		if want {
			err = s.store.Like(callCtx, userID, trackID)
		} else {
			err = s.store.Unlike(callCtx, userID, trackID)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.applyLikeResultLocked(trackID, seq, want, err)
	})

	return nil
}

// Close stops the session and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	<-s.workerDone

	s.mu.Lock()
	close(s.eventCh)
	s.mu.Unlock()
}

func (s *Session) pauseLocked() {
	s.status = StatusPaused
	s.emitLocked(EventStateChanged, s.current.ID, nil)
}

func (s *Session) playLocked() {
	if s.status == StatusPlaying {
		return
	}
	s.status = StatusPlaying
	s.emitLocked(EventStateChanged, s.current.ID, nil)
}

// loadLocked makes t current without touching the cursor.
// Must be called with lock held.
func (s *Session) loadLocked(t track.Track) {
	s.loadGen++
	s.current = &t
	s.status = StatusPaused
	s.currentTime = 0
	s.duration = float64(t.Duration)
	s.like = LikeUnknown

	zlog.Debug().Msgf("playback: loaded track=%s title=%q duration=%d", t.ID, t.Title, t.Duration)
	s.emitLocked(EventTrackLoaded, t.ID, nil)

	s.fetchLikeLocked(t.ID)
}

// advanceLocked moves the cursor by delta (or randomly under shuffle), then loads and plays.
// With no current track the track under the cursor is loaded without moving.
// When the current track is not part of the queue, Next starts at the first
// track and Previous at the last one.
// Must be called with lock held.
func (s *Session) advanceLocked(delta int) error {
	if s.queue.IsEmpty() {
		return ErrQueueEmpty
	}

	switch {
	case s.current == nil:
		// Start of the context.
	case s.shuffled:
		s.queue.MoveTo(s.config.Rand(s.queue.Len()))
	case !s.onQueue && delta > 0:
		s.queue.MoveTo(0)
	case !s.onQueue:
		s.queue.MoveTo(s.queue.Len() - 1)
	default:
		s.queue.Step(delta)
	}
	s.onQueue = true

	t, _ := s.queue.Current()
	s.loadLocked(t)
	s.playLocked()
	return nil
}

func (s *Session) tickLocked(seconds float64) error {
	if s.current == nil {
		return ErrNoTrackLoaded
	}
	// Ticks trailing an end of track or a media failure keep the reset position.
	if s.status == StatusIdle {
		return nil
	}
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}

	if s.duration > 0 && seconds >= s.duration {
		s.currentTime = s.duration
		if s.status == StatusPlaying {
			s.endOfTrackLocked()
			return nil
		}
		s.emitLocked(EventStateChanged, s.current.ID, nil)
		return nil
	}

	s.currentTime = seconds
	s.emitLocked(EventStateChanged, s.current.ID, nil)
	return nil
}

func (s *Session) setDurationLocked(seconds float64) error {
	if s.current == nil {
		return ErrNoTrackLoaded
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return errors.Wrapf(ErrInvalidDuration, "duration %v", seconds)
	}

	s.duration = seconds
	if s.duration > 0 && s.currentTime > s.duration {
		s.currentTime = s.duration
	}
	s.emitLocked(EventStateChanged, s.current.ID, nil)
	return nil
}

func (s *Session) endedLocked() error {
	if s.current == nil {
		return ErrNoTrackLoaded
	}
	if s.status != StatusPlaying {
		return nil
	}
	s.endOfTrackLocked()
	return nil
}

// endOfTrackLocked applies the repeat policy.
// Must be called with lock held.
func (s *Session) endOfTrackLocked() {
	endedID := s.current.ID
	zlog.Debug().Msgf("playback: track ended: track=%s repeat=%s", endedID, s.repeat)
	s.emitLocked(EventTrackEnded, endedID, nil)

	switch s.repeat {
	case RepeatOne:
		s.currentTime = 0
		s.status = StatusPlaying
		s.emitLocked(EventStateChanged, endedID, nil)
	case RepeatAll:
		if err := s.advanceLocked(1); err != nil {
			s.stopLocked()
		}
	default:
		s.stopLocked()
	}
}

func (s *Session) stopLocked() {
	s.status = StatusIdle
	s.currentTime = 0
	s.emitLocked(EventStateChanged, s.currentIDLocked(), nil)
}

func (s *Session) mediaFailedLocked(message string) error {
	if s.current == nil {
		return ErrNoTrackLoaded
	}

	trackID := s.current.ID
	err := errors.Mark(errors.Newf("track %s: %s", trackID, message), ErrPlaybackResource)
	zlog.Warn().Msgf("playback: media resource failed: track=%s message=%s", trackID, message)

	s.status = StatusIdle
	s.lastErr = err
	s.emitLocked(EventPlaybackError, trackID, err)
	return nil
}

// fetchLikeLocked resolves the like state of a freshly loaded track.
// The result is dropped if another track was loaded, or a toggle was issued, meanwhile.
// Must be called with lock held.
func (s *Session) fetchLikeLocked(trackID string) {
	if s.config.UserID == "" {
		return
	}

	gen := s.loadGen
	seqAtIssue := s.latestLike[trackID]
	userID := s.config.UserID

	s.enqueueLocked(func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
		defer cancel()

		liked, err := s.store.LikeStatus(callCtx, userID, trackID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if err != nil {
			zlog.Warn().Msgf("playback: failed to fetch like status: track=%s err=%v", trackID, err)
			return
		}
		if s.latestLike[trackID] != seqAtIssue {
			return
		}

		s.confirmed[trackID] = liked
		if s.loadGen != gen {
			return
		}
		s.like = likeStateOf(liked)
		s.emitLocked(EventLikeChanged, trackID, nil)
	})
}

// applyLikeResultLocked reconciles the visible like state with a store response.
// Only the latest request issued for a track may change what is visible.
// Must be called with lock held.
func (s *Session) applyLikeResultLocked(trackID string, seq uint64, want bool, err error) {
	if err == nil {
		s.confirmed[trackID] = want
		return
	}

	failure := errors.Mark(errors.Wrapf(err, "like sync failed: track=%s", trackID), ErrLikeSyncFailure)
	s.lastErr = failure
	zlog.Warn().Msgf("playback: like sync failed: track=%s want=%v err=%v", trackID, want, err)

	if s.latestLike[trackID] == seq && s.current != nil && s.current.ID == trackID {
		prior := !want
		if c, ok := s.confirmed[trackID]; ok {
			prior = c
		}
		s.like = likeStateOf(prior)
	}
	s.emitLocked(EventLikeSyncFailed, trackID, failure)
}

// rejectLocked records err as the last error and reports it to subscribers.
// Must be called with lock held.
func (s *Session) rejectLocked(err error) error {
	s.lastErr = err
	s.emitLocked(EventCommandRejected, s.currentIDLocked(), err)
	return err
}

func (s *Session) currentIDLocked() string {
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

func (s *Session) snapshotLocked() State {
	st := State{
		Status:      s.status,
		CurrentTime: s.currentTime,
		Duration:    s.duration,
		Volume:      s.volume,
		Muted:       s.muted,
		Shuffled:    s.shuffled,
		RepeatMode:  s.repeat,
		Like:        s.like,
		Cursor:      s.queue.Cursor(),
		QueueIDs:    s.queue.TrackIDs(),
	}
	if s.current != nil {
		t := *s.current
		st.Track = &t
	}
	return st
}

// emitLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) emitLocked(typ EventType, trackID string, err error) {
	if s.closed {
		return
	}

	e := Event{
		Type:    typ,
		TrackID: trackID,
		State:   s.snapshotLocked(),
		Err:     err,
	}

	select {
	case s.eventCh <- e:
	default:
		// Channel full, drop event. Subscribers resync from the next snapshot.
		zlog.Debug().Msgf("playback: event channel full, dropping event=%s", typ)
	}
}

// enqueueLocked schedules a store job after all previously scheduled ones.
// Must be called with lock held.
func (s *Session) enqueueLocked(job func(ctx context.Context)) {
	s.jobsMu.Lock()
	s.jobs = append(s.jobs, job)
	s.jobsMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) popJob() (func(ctx context.Context), bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if len(s.jobs) == 0 {
		return nil, false
	}
	job := s.jobs[0]
	s.jobs[0] = nil
	s.jobs = s.jobs[1:]
	return job, true
}

// runWorker runs store jobs one at a time until the session is closed.
func (s *Session) runWorker() {
	defer close(s.workerDone)

	for {
		if s.ctx.Err() != nil {
			return
		}

		job, ok := s.popJob()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}
		job(s.ctx)
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
