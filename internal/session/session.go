// Package session persists the local identity and the last joined room so a
// restarted client can resume without asking the user again.
package session

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Namespace is the stable key the session is stored under in every backend.
const Namespace = "chatsync/session"

var ErrUsernameRequired = errors.New("session: username is required")

// Session is the only piece of client state that outlives a connection.
type Session struct {
	Username string `json:"username"`
	LastRoom string `json:"lastRoom,omitempty"`
}

// backend is a single-value durable slot. Get returns (nil, nil) when empty.
type backend interface {
	Get() ([]byte, error)
	Put(value []byte) error
	Delete() error
	Close() error
}

// Store keeps the current session in memory and mirrors it to a backend.
// Backend failures are logged and never surface to callers: the in-memory
// copy stays authoritative for the life of the process.
type Store struct {
	mu      sync.Mutex
	be      backend
	cur     Session
	present bool
	loaded  bool
}

// NewMemoryStore returns a store without persistence.
func NewMemoryStore() *Store {
	return &Store{loaded: true}
}

func newStore(be backend) *Store {
	return &Store{be: be}
}

// Load returns the persisted session, if any.
func (s *Store) Load() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loaded = true
		s.readBackend()
	}
	return s.cur, s.present
}

func (s *Store) readBackend() {
	if s.be == nil {
		return
	}
	raw, err := s.be.Get()
	if err != nil {
		log.Warn().Err(err).Msg("[session] load failed; continuing without saved session")
		return
	}
	if len(raw) == 0 {
		return
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		log.Warn().Err(err).Msg("[session] saved session is corrupt; ignoring")
		return
	}
	if strings.TrimSpace(sess.Username) == "" {
		return
	}
	s.cur, s.present = sess, true
}

// Save records sess. Only an empty username is rejected.
func (s *Store) Save(sess Session) error {
	sess.Username = strings.TrimSpace(sess.Username)
	if sess.Username == "" {
		return ErrUsernameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.cur, s.present = sess, true
	if s.be == nil {
		return nil
	}
	val, _ := json.Marshal(sess)
	if err := s.be.Put(val); err != nil {
		log.Warn().Err(err).Str("user", sess.Username).Msg("[session] persist failed; keeping in memory")
	}
	return nil
}

// Clear forgets the session both in memory and in the backend.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.cur, s.present = Session{}, false
	if s.be == nil {
		return
	}
	if err := s.be.Delete(); err != nil {
		log.Warn().Err(err).Msg("[session] clear failed")
	}
}

// Persistent reports whether a durable backend is attached.
func (s *Store) Persistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.be != nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.be == nil {
		return nil
	}
	err := s.be.Close()
	s.be = nil
	return err
}
