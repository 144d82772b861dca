package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chatsync/internal/reconcile"
)

type stateSource interface {
	State() (reconcile.State, error)
}

type linkStatus interface {
	Connected() bool
}

// newStateRouter exposes the mirrored client state for local tooling.
func newStateRouter(src stateSource, link linkStatus) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		body := map[string]any{"connected": link.Connected()}
		if !link.Connected() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, body)
	})
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		st, err := src.State()
		if err != nil {
			log.Warn().Err(err).Msg("[chatsync] state unavailable")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
