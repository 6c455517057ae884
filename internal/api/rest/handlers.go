package rest

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
)

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *user.User `json:"user"`
}

// LoginRequest represents the login request body.
// Username may also hold an email address.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AddSongRequest represents the body of an add-to-playlist request.
type AddSongRequest struct {
	SongID   string `json:"songId"`
	Position *int   `json:"position,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var reg user.Registration
	if err := decode(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.svc.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeToken(w, r, http.StatusCreated, u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if !h.loginLimiter.Allow(h.clientIP(r)) {
		writeError(w, r, ErrRateLimited)
		return
	}

	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeToken(w, r, http.StatusOK, u)
}

func (h *Handler) writeToken(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	token, expires, err := h.issuer.Issue(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, ExpiresAt: expires, User: u})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) listSongs(w http.ResponseWriter, r *http.Request) {
	var (
		songs []track.Track
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		songs, err = h.svc.SearchSongs(r.Context(), q)
	} else {
		songs, err = h.svc.ListSongs(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(songs))
}

func (h *Handler) getSong(w http.ResponseWriter, r *http.Request) {
	song, err := h.svc.GetSong(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *Handler) createSong(w http.ResponseWriter, r *http.Request) {
	var t track.Track
	if err := decode(r, &t); err != nil {
		writeError(w, r, err)
		return
	}

	song, err := h.svc.CreateSong(r.Context(), principal(r).Actor, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

func (h *Handler) deleteSong(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSong(r.Context(), principal(r).Actor, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.svc.ListPlaylists(r.Context(), principal(r).Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(playlists))
}

func (h *Handler) listPublicPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.svc.ListPublicPlaylists(r.Context(), principal(r).Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(playlists))
}

func (h *Handler) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var req library.CreatePlaylistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.CreatePlaylist(r.Context(), principal(r).Actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPlaylist(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetPlaylist(r.Context(), principal(r).Actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail.Songs = nonNil(detail.Songs)
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) updatePlaylist(w http.ResponseWriter, r *http.Request) {
	var upd playlist.Update
	if err := decode(r, &upd); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.UpdatePlaylist(r.Context(), principal(r).Actor, mux.Vars(r)["id"], upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePlaylist(r.Context(), principal(r).Actor, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addPlaylistSong(w http.ResponseWriter, r *http.Request) {
	var req AddSongRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SongID == "" {
		writeError(w, r, errors.Wrap(errBadRequest, "songId is required"))
		return
	}

	e, err := h.svc.AddSong(r.Context(), principal(r).Actor, mux.Vars(r)["id"], req.SongID, req.Position, filter.OriginUser)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) removePlaylistSong(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.svc.RemoveSong(r.Context(), principal(r).Actor, vars["id"], vars["songId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listLiked(w http.ResponseWriter, r *http.Request) {
	liked, err := h.svc.ListLiked(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(liked))
}

func (h *Handler) likeSong(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Like(r.Context(), principal(r).UserID, mux.Vars(r)["songId"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, like.Status{IsLiked: true})
}

func (h *Handler) unlikeSong(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unlike(r.Context(), principal(r).UserID, mux.Vars(r)["songId"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, like.Status{IsLiked: false})
}

func (h *Handler) likeStatus(w http.ResponseWriter, r *http.Request) {
	liked, err := h.svc.LikeStatus(r.Context(), principal(r).UserID, mux.Vars(r)["songId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, like.Status{IsLiked: liked})
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
