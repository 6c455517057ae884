// Package rest provides the HTTP API for accounts, the catalog, playlists and liked songs.
package rest

import (
	"net/http"
	"net/netip"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/infra/auth"
)

// Options represents REST handler configuration.
type Options struct {
	AdminToken         string
	LoginRatePerMinute int
	LoginBurst         int
	CORSOrigins        []string
	TrustedProxies     []string // Addresses or CIDR ranges whose X-Forwarded-For is honored
}

// Handler serves the REST API.
type Handler struct {
	svc            *library.Service
	issuer         *auth.Issuer
	auth           *Authenticator
	loginLimiter   *ipLimiter
	corsOrigins    []string
	trustedProxies []netip.Prefix
}

// NewHandler creates a new REST handler.
func NewHandler(svc *library.Service, issuer *auth.Issuer, opts Options) *Handler {
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 10
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	return &Handler{
		svc:            svc,
		issuer:         issuer,
		auth:           NewAuthenticator(issuer, opts.AdminToken),
		loginLimiter:   newIPLimiter(rate.Limit(float64(opts.LoginRatePerMinute)/60), opts.LoginBurst),
		corsOrigins:    opts.CORSOrigins,
		trustedProxies: parseTrustedProxies(opts.TrustedProxies),
	}
}

// Authenticator returns the request authenticator shared with other transports.
func (h *Handler) Authenticator() *Authenticator {
	return h.auth
}

// Router builds the API router. player serves the player socket and may be nil.
func (h *Handler) Router(player http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests, h.cors)

	// Preflight requests match no API route, so give them one for the middleware to run on.
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	// Accounts
	router.HandleFunc("/api/auth/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/user", h.requireUser(h.currentUser)).Methods(http.MethodGet)

	// Catalog
	router.HandleFunc("/api/songs", h.listSongs).Methods(http.MethodGet)
	router.HandleFunc("/api/songs", h.requireAuth(h.createSong)).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/{id}", h.getSong).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.requireAuth(h.deleteSong)).Methods(http.MethodDelete)

	// Playlists
	router.HandleFunc("/api/playlists", h.requireUser(h.listPlaylists)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.requireUser(h.createPlaylist)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/public", h.requireUser(h.listPublicPlaylists)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.requireUser(h.getPlaylist)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.requireUser(h.updatePlaylist)).Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc("/api/playlists/{id}", h.requireUser(h.deletePlaylist)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", h.requireUser(h.addPlaylistSong)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs/{songId}", h.requireUser(h.removePlaylistSong)).Methods(http.MethodDelete)

	// Liked songs
	router.HandleFunc("/api/liked-songs", h.requireUser(h.listLiked)).Methods(http.MethodGet)
	router.HandleFunc("/api/liked-songs/{songId}", h.requireUser(h.likeSong)).Methods(http.MethodPost)
	router.HandleFunc("/api/liked-songs/{songId}", h.requireUser(h.unlikeSong)).Methods(http.MethodDelete)
	router.HandleFunc("/api/liked-songs/{songId}/status", h.requireUser(h.likeStatus)).Methods(http.MethodGet)

	if player != nil {
		router.Handle("/api/player/ws", player).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "Route not found"})
	})
	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
