// Package session hosts one player session per user and fans its events out to subscribers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/app/notification"
	"github.com/osa030/melodystream/internal/app/playback"
)

var (
	ErrRegistryClosed = errors.New("session registry is closed")
	ErrInvalidUser    = errors.New("invalid user")
)

// Config holds registry configuration.
type Config struct {
	Player           playback.Config // UserID is set per session
	IdleTimeout      time.Duration   // Close sessions this long after the last subscriber leaves
	BroadcastTimeout time.Duration   // Per-subscriber send timeout
}

// Player is a user's hosted session and its subscribers.
type Player struct {
	userID   string
	session  *playback.Session
	notifier *notification.Manager

	idleTimer *time.Timer // Guarded by Registry.mu
	done      chan struct{}
}

// UserID returns the owner of the player.
func (p *Player) UserID() string {
	return p.userID
}

// Session returns the player session.
func (p *Player) Session() *playback.Session {
	return p.session
}

// Done is closed once the session is closed and its events are drained.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// PublishState broadcasts the current snapshot to all subscribers.
func (p *Player) PublishState() {
	p.notifier.Broadcast(notification.NewMessage(notification.TypeState, NewStateView(p.session.Snapshot())))
}

// SendError sends a rejected command to a single subscriber.
func (p *Player) SendError(subscriptionID string, v ErrorView) error {
	return p.notifier.Send(subscriptionID, notification.NewMessage(notification.TypeError, v))
}

// pump forwards session events until the session is closed.
func (p *Player) pump() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event pump panicked: user=%s: %v", p.userID, r)
		}
	}()

	for ev := range p.session.Events() {
		if ev.Type != playback.EventStateChanged {
			p.notifier.Broadcast(notification.NewMessage(notification.TypeEvent, NewEventView(ev)))
		}
		p.notifier.Broadcast(notification.NewMessage(notification.TypeState, NewStateView(ev.State)))
	}
}

// Registry manages player sessions with thread-safe access.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
	store   playback.Store
	config  Config
	closed  bool
}

// NewRegistry creates a new registry backed by store.
func NewRegistry(store playback.Store, config Config) *Registry {
	return &Registry{
		players: make(map[string]*Player),
		store:   store,
		config:  config,
	}
}

// Attach subscribes stream to the user's player, creating the player on first use.
// The current snapshot is sent to the new subscriber.
func (r *Registry) Attach(userID string, stream notification.Stream) (*Player, string, error) {
	if userID == "" {
		return nil, "", ErrInvalidUser
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, "", ErrRegistryClosed
	}

	p, ok := r.players[userID]
	if !ok {
		p = r.newPlayerLocked(userID)
		r.players[userID] = p
		zlog.Info().Msgf("session: player created: user=%s", userID)
	}
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	subID := p.notifier.Subscribe(stream)
	r.mu.Unlock()

	zlog.Debug().Msgf("session: subscriber attached: user=%s subscription=%s", userID, subID)

	if err := p.notifier.Send(subID, notification.NewMessage(notification.TypeState, NewStateView(p.session.Snapshot()))); err != nil {
		zlog.Debug().Msgf("session: initial state send failed: user=%s: %v", userID, err)
	}
	return p, subID, nil
}

// Detach removes a subscriber. The player is closed after the idle timeout
// once it has no subscribers left.
func (r *Registry) Detach(p *Player, subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := p.notifier.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("session: subscriber detached: user=%s remaining=%d", p.userID, remaining)

	if remaining > 0 || r.closed || r.players[p.userID] != p {
		return
	}
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(r.config.IdleTimeout, func() { r.expire(p) })
}

// Get returns the user's player if it exists.
func (r *Registry) Get(userID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[userID]
	return p, ok
}

// Count returns the number of hosted players.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Close closes every player and rejects further attaches.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	players := make([]*Player, 0, len(r.players))
	for id, p := range r.players {
		if p.idleTimer != nil {
			p.idleTimer.Stop()
		}
		players = append(players, p)
		delete(r.players, id)
	}
	r.mu.Unlock()

	for _, p := range players {
		closePlayer(p)
	}
}

// Shutdown closes the registry, waiting for event pumps until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.Unlock()

	r.Close()
	for _, p := range players {
		select {
		case <-p.done:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "timed out waiting for player sessions")
		}
	}
	return nil
}

func (r *Registry) newPlayerLocked(userID string) *Player {
	cfg := r.config.Player
	cfg.UserID = userID

	p := &Player{
		userID:   userID,
		session:  playback.NewSession(r.store, cfg),
		notifier: notification.NewManager(r.config.BroadcastTimeout),
		done:     make(chan struct{}),
	}
	go p.pump()
	return p
}

// expire closes an idle player unless a subscriber came back.
func (r *Registry) expire(p *Player) {
	r.mu.Lock()
	if r.players[p.userID] != p || p.notifier.SubscriberCount() > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.players, p.userID)
	p.idleTimer = nil
	r.mu.Unlock()

	zlog.Info().Msgf("session: idle player closed: user=%s", p.userID)
	closePlayer(p)
}

func closePlayer(p *Player) {
	p.session.Close()
	p.notifier.Close()
}
