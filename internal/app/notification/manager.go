// Package notification fans player messages out to the sockets subscribed to a player.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Message types
const (
	TypeState = "state"
	TypeEvent = "event"
	TypeError = "error"
)

// ErrSendTimeout is returned when a subscriber does not accept a message in time.
var ErrSendTimeout = errors.New("notification send timed out")

// Message is the envelope pushed to subscribers.
type Message struct {
	Type       string    `json:"type"`
	SequenceNo uint64    `json:"seq,omitempty"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(typ string, data any) *Message {
	return &Message{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

// Stream is the receiving end of a subscription, typically a websocket client.
type Stream interface {
	Send(*Message) error
}

// Manager tracks the streams subscribed to one player.
// Every message it hands out carries the next sequence number of that player.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]Stream

	seq     atomic.Uint64
	timeout time.Duration
}

// NewManager creates a manager. A send that takes longer than timeout is abandoned.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Manager{
		streams: make(map[string]Stream),
		timeout: timeout,
	}
}

// Subscribe registers a stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.streams[id] = stream
	m.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription and reports how many remain.
func (m *Manager) Unsubscribe(subscriptionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, subscriptionID)
	return len(m.streams)
}

// NextSequenceNo reserves the next sequence number.
func (m *Manager) NextSequenceNo() uint64 {
	return m.seq.Add(1)
}

// Broadcast stamps msg with a sequence number, sends it to every subscriber
// concurrently and returns the number of streams that accepted it.
func (m *Manager) Broadcast(msg *Message) int {
	msg.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	targets := make(map[string]Stream, len(m.streams))
	for id, s := range m.streams {
		targets[id] = s
	}
	m.mu.RUnlock()

	results := make(chan bool, len(targets))
	for id, s := range targets {
		go func() {
			err := m.deliver(s, msg)
			if err != nil {
				zlog.Debug().Msgf("notification: dropped message: subscription=%s type=%s seq=%d: %v",
					id, msg.Type, msg.SequenceNo, err)
			}
			results <- err == nil
		}()
	}

	delivered := 0
	for range targets {
		if <-results {
			delivered++
		}
	}
	return delivered
}

// Send stamps msg with a sequence number and sends it to one subscriber.
// Unknown subscriptions are ignored.
func (m *Manager) Send(subscriptionID string, msg *Message) error {
	m.mu.RLock()
	s, ok := m.streams[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	msg.SequenceNo = m.NextSequenceNo()
	return m.deliver(s, msg)
}

// deliver sends msg on s, giving up after the manager timeout.
// An abandoned send keeps running in the background until the stream returns.
func (m *Manager) deliver(s Stream, msg *Message) error {
	done := make(chan error, 1)
	go func() { done <- s.Send(msg) }()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.Wrapf(ErrSendTimeout, "after %s", m.timeout)
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.streams)
}
