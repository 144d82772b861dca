package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// pebbleBackend keeps the session under a single key of a Pebble database.
type pebbleBackend struct {
	db  *pebble.DB
	key []byte
}

func openPebble(dir string) (*pebbleBackend, error) {
	if dir == "" {
		return nil, errors.New("pebble: empty path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &pebbleBackend{db: db, key: []byte(Namespace)}, nil
}

func (b *pebbleBackend) Get() ([]byte, error) {
	data, closer, err := b.db.Get(b.key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	defer closer.Close()
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (b *pebbleBackend) Put(value []byte) error {
	return b.db.Set(b.key, value, pebble.Sync)
}

func (b *pebbleBackend) Delete() error {
	return b.db.Delete(b.key, pebble.Sync)
}

func (b *pebbleBackend) Close() error {
	return b.db.Close()
}
