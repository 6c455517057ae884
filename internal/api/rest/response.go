package rest

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/app/library"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("too many requests")

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("rest: failed to encode response: %v", err)
	}
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *library.RejectedError
	if errors.As(err, &rejected) {
		status := http.StatusConflict
		if rejected.Code == "not_playlist_owner" {
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorBody{Code: rejected.Code, Message: rejected.Message})
		return
	}

	status, body := classify(err)
	if status == http.StatusInternalServerError {
		zlog.Error().Msgf("rest: %s %s failed: %+v", r.Method, r.URL.Path, err)
	} else {
		zlog.Debug().Msgf("rest: %s %s rejected: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, library.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "Authentication required"}
	case errors.Is(err, library.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Code: "invalid_credentials", Message: "Invalid username or password"}
	case errors.Is(err, library.ErrForbidden):
		return http.StatusForbidden, errorBody{Code: "forbidden", Message: "You are not allowed to do this"}
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: "Not found"}
	case errors.Is(err, library.ErrConflict):
		return http.StatusConflict, errorBody{Code: "conflict", Message: "Already exists"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: "Too many requests, try again later"}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal server error"}
	}
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid request body"), errBadRequest)
	}
	return nil
}
