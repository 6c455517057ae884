// Package ws provides the player socket: one websocket per client, driving the user's hosted player session.
package ws

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/api/rest"
	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/app/session"
	"github.com/osa030/melodystream/internal/domain/track"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Library resolves the track lists a queue can be built from.
type Library interface {
	ListSongs(ctx context.Context) ([]track.Track, error)
	GetSong(ctx context.Context, id string) (*track.Track, error)
	PlaylistTracks(ctx context.Context, actor library.Actor, id string) ([]track.Track, error)
	LikedTracks(ctx context.Context, userID string) ([]track.Track, error)
}

// Options represents player socket configuration.
type Options struct {
	CommandRate    float64       // Commands per second per connection
	CommandBurst   int           // Command burst per connection
	AllowedOrigins []string      // Cross-site origins accepted besides the server's own host; "*" accepts any
	RequestTimeout time.Duration // Timeout for library lookups
}

// Handler upgrades player socket requests.
type Handler struct {
	auth     *rest.Authenticator
	registry *session.Registry
	library  Library
	upgrader websocket.Upgrader
	opts     Options
}

// NewHandler creates a player socket handler.
func NewHandler(auth *rest.Authenticator, registry *session.Registry, lib Library, opts Options) *Handler {
	if opts.CommandRate <= 0 {
		opts.CommandRate = 20
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = 40
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	h := &Handler{
		auth:     auth,
		registry: registry,
		library:  lib,
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts same-host and listed origins.
// Requests without an Origin header come from non-browser clients.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// ServeHTTP authenticates the request, upgrades it and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Authenticate(r)
	if err != nil || p.UserID == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("ws: upgrade failed: user=%s: %v", p.UserID, err)
		return
	}

	c := newClient(conn, p, h.opts)
	player, subID, err := h.registry.Attach(p.UserID, c)
	if err != nil {
		zlog.Warn().Msgf("ws: attach failed: user=%s: %v", p.UserID, err)
		c.closeWithReason(websocket.CloseTryAgainLater, "player unavailable")
		return
	}
	zlog.Info().Msgf("ws: player connected: user=%s subscription=%s", p.UserID, subID)

	go c.writePump()
	c.readPump(func(env Envelope) {
		h.dispatch(r.Context(), c, player, subID, env)
	})

	h.registry.Detach(player, subID)
	c.close()
	zlog.Info().Msgf("ws: player disconnected: user=%s subscription=%s", p.UserID, subID)
}
