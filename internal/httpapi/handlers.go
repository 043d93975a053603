// Package httpapi exposes the HTTP surface: the websocket endpoint plus
// a few read-only diagnostic routes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fwiko/multiplayer-quiz/internal/registry"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListGames returns the joinable (non-active) matches.
func ListGames(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Games any `json:"games"`
		}{reg.Games()})
	}
}

// GetSession is a diagnostic lookup by session uid.
func GetSession(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, err := strconv.Atoi(chi.URLParam(r, "uid"))
		if err != nil {
			http.Error(w, "invalid uid", http.StatusBadRequest)
			return
		}
		c, ok := reg.SessionByID(uid)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			UID      int    `json:"uid"`
			Username string `json:"username"`
		}{c.UID(), c.Username()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
