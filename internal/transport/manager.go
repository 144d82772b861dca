// Package transport owns the duplex event channel to the authority: dialing,
// request/acknowledgement round-trips, per-event subscriptions and automatic
// reconnection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrReconnecting is returned by Connect while the manager is already
// retrying in the background.
var ErrReconnecting = errors.New("transport: reconnect in progress")

const dialTimeout = 10 * time.Second

type Config struct {
	Endpoint       string
	Dialer         Dialer
	RequestTimeout time.Duration // applied when the caller's ctx has no deadline
	Backoff        Backoff
}

// Manager keeps at most one live Channel and replaces it after unexpected
// drops.
type Manager struct {
	cfg Config

	connectMu sync.Mutex

	mu            sync.Mutex
	handlers      map[string]Handler
	ch            *Channel
	everConnected bool
	redialing     bool
	onDown        []func(error)
	onUp          []func()

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebSocketDialer{}
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		closing:  make(chan struct{}),
	}
}

// Connect establishes the channel. An unreachable endpoint yields an error
// wrapping ErrConnection and the caller may retry. Connecting again after a
// previous channel existed fires the reconnected handlers.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	switch {
	case m.ch != nil:
		m.mu.Unlock()
		return nil
	case m.redialing:
		m.mu.Unlock()
		return ErrReconnecting
	}
	m.mu.Unlock()

	ch, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.ch = ch
	resumed := m.everConnected
	m.everConnected = true
	m.mu.Unlock()

	log.Info().Str("endpoint", m.cfg.Endpoint).Bool("resumed", resumed).Msg("[transport] connected")
	m.wg.Add(1)
	go m.supervise(ch)
	if resumed {
		m.fireUp()
	}
	return nil
}

func (m *Manager) dial(ctx context.Context) (*Channel, error) {
	conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return newChannel(conn, m.handlers), nil
}

func (m *Manager) supervise(ch *Channel) {
	defer m.wg.Done()
	for {
		select {
		case <-ch.Done():
		case <-m.closing:
			_ = ch.Close()
			return
		}
		if m.isClosed() {
			return
		}
		m.mu.Lock()
		if m.ch == ch {
			m.ch = nil
		}
		m.redialing = true
		m.mu.Unlock()

		cause := ch.Err()
		log.Warn().Err(cause).Msg("[transport] channel dropped")
		m.fireDown(cause)

		next := m.redial()
		m.mu.Lock()
		m.redialing = false
		m.mu.Unlock()
		if next == nil {
			return
		}
		log.Info().Str("endpoint", m.cfg.Endpoint).Msg("[transport] reconnected")
		m.fireUp()
		ch = next
	}
}

func (m *Manager) redial() *Channel {
	for attempt := 0; ; attempt++ {
		if m.cfg.Backoff.Exhausted(attempt) {
			log.Error().Int("attempts", attempt).Msg("[transport] giving up reconnecting")
			return nil
		}
		t := time.NewTimer(m.cfg.Backoff.Delay(attempt))
		select {
		case <-t.C:
		case <-m.closing:
			t.Stop()
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		ch, err := m.dial(ctx)
		cancel()
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("[transport] reconnect attempt failed")
			continue
		}
		m.mu.Lock()
		if m.isClosed() {
			m.mu.Unlock()
			_ = ch.Close()
			return nil
		}
		m.ch = ch
		m.mu.Unlock()
		return ch
	}
}

// Subscribe registers the single handler for event. A later call for the
// same event replaces the earlier handler on the live channel and on every
// channel created afterwards.
func (m *Manager) Subscribe(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = h
	if m.ch != nil {
		m.ch.subscribe(event, h)
	}
}

func (m *Manager) OnDisconnected(fn func(error)) {
	m.mu.Lock()
	m.onDown = append(m.onDown, fn)
	m.mu.Unlock()
}

func (m *Manager) OnReconnected(fn func()) {
	m.mu.Lock()
	m.onUp = append(m.onUp, fn)
	m.mu.Unlock()
}

func (m *Manager) fireDown(err error) {
	m.mu.Lock()
	fns := slices.Clone(m.onDown)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (m *Manager) fireUp() {
	m.mu.Lock()
	fns := slices.Clone(m.onUp)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Manager) current() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

// Connected reports whether a live channel exists.
func (m *Manager) Connected() bool {
	return m.current() != nil
}

// Emit sends a fire-and-forget event on the live channel.
func (m *Manager) Emit(event string, args ...any) error {
	ch := m.current()
	if ch == nil {
		return ErrDisconnected
	}
	return ch.Emit(event, args...)
}

// Request sends event and waits for its acknowledgement. Requests are never
// retried across reconnects.
func (m *Manager) Request(ctx context.Context, event string, args ...any) (Ack, error) {
	ch := m.current()
	if ch == nil {
		return Ack{}, ErrDisconnected
	}
	if _, ok := ctx.Deadline(); !ok && m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}
	return ch.Request(ctx, event, args...)
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.closing:
		return true
	default:
		return false
	}
}

// Close drops the channel and stops reconnecting.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.mu.Lock()
		ch := m.ch
		m.ch = nil
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
	})
	m.wg.Wait()
	return nil
}
