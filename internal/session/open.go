package session

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Options struct {
	Backend string // pebble (default), sqlite or memory
	Path    string // directory for pebble, file for sqlite
}

// Open returns a store on the requested backend. When the backend cannot be
// opened the store silently degrades to memory only; Open never fails.
func Open(opts Options) *Store {
	kind := strings.ToLower(strings.TrimSpace(opts.Backend))
	if kind == "" {
		kind = BackendPebble
	}
	if kind == BackendMemory || opts.Path == "" {
		return NewMemoryStore()
	}
	be, err := openBackend(kind, opts.Path)
	if err != nil {
		log.Warn().Err(err).Str("backend", kind).Str("path", opts.Path).Msg("[session] open store failed; running in memory only")
		return NewMemoryStore()
	}
	log.Debug().Str("backend", kind).Str("path", opts.Path).Msg("[session] store opened")
	return newStore(be)
}

func openBackend(kind, path string) (backend, error) {
	switch kind {
	case BackendPebble:
		return openPebble(path)
	case BackendSQLite:
		return openSQLite(path)
	default:
		return nil, fmt.Errorf("unknown session backend %q", kind)
	}
}
