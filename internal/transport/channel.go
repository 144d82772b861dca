package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrConnection means the endpoint could not be reached.
	ErrConnection = errors.New("transport: endpoint unreachable")
	// ErrDisconnected means there is no live channel, or it dropped while a
	// request was in flight.
	ErrDisconnected = errors.New("transport: disconnected")
	// ErrClosed means the manager was closed by its owner.
	ErrClosed = errors.New("transport: closed")
	// ErrMalformedFrame marks one unreadable frame; the connection survives.
	ErrMalformedFrame = errors.New("transport: malformed frame")
)

// Handler receives the arguments of one inbound event.
type Handler func(Args)

// Channel is one connection lifetime. Its handler table is copied from the
// manager at creation, so subscriptions die with the channel and a
// replacement channel starts from a fresh copy.
type Channel struct {
	conn Conn

	mu       sync.Mutex
	handlers map[string]Handler
	nextID   uint64
	pending  map[uint64]chan Ack
	err      error

	done chan struct{}
	once sync.Once
}

func newChannel(conn Conn, handlers map[string]Handler) *Channel {
	table := make(map[string]Handler, len(handlers))
	for ev, h := range handlers {
		table[ev] = h
	}
	c := &Channel{
		conn:     conn,
		handlers: table,
		pending:  make(map[uint64]chan Ack),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	for {
		f, err := c.conn.ReadFrame()
		if errors.Is(err, ErrMalformedFrame) {
			log.Warn().Err(err).Msg("[transport] skipping frame")
			continue
		}
		if err != nil {
			c.shutdown(err)
			return
		}
		if f.Reply != 0 {
			c.resolve(f.Reply, Ack{Args: Args(f.Args)})
			continue
		}
		c.mu.Lock()
		h := c.handlers[f.Event]
		c.mu.Unlock()
		if h == nil {
			log.Debug().Str("event", f.Event).Msg("[transport] no handler for event")
			continue
		}
		h(Args(f.Args))
	}
}

// subscribe sets the single handler for event, replacing any previous one.
func (c *Channel) subscribe(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

func (c *Channel) resolve(id uint64, ack Ack) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		log.Debug().Uint64("reply", id).Msg("[transport] late or unknown ack")
		return
	}
	ch <- ack
}

// Emit sends an event without waiting for an acknowledgement.
func (c *Channel) Emit(event string, args ...any) error {
	f, err := newFrame(event, args)
	if err != nil {
		return err
	}
	return c.write(f)
}

// Request sends an event and waits for the authority's acknowledgement.
func (c *Channel) Request(ctx context.Context, event string, args ...any) (Ack, error) {
	f, err := newFrame(event, args)
	if err != nil {
		return Ack{}, err
	}
	reply := make(chan Ack, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Ack{}, ErrDisconnected
	}
	c.nextID++
	f.Ack = c.nextID
	c.pending[f.Ack] = reply
	c.mu.Unlock()

	if err := c.write(f); err != nil {
		c.forget(f.Ack)
		return Ack{}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-c.done:
		// an ack that raced the drop is still good
		select {
		case ack := <-reply:
			return ack, nil
		default:
		}
		return Ack{}, ErrDisconnected
	case <-ctx.Done():
		c.forget(f.Ack)
		return Ack{}, ctx.Err()
	}
}

func (c *Channel) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Channel) write(f Frame) error {
	select {
	case <-c.done:
		return ErrDisconnected
	default:
	}
	if err := c.conn.WriteFrame(f); err != nil {
		c.shutdown(err)
		return errors.Join(ErrDisconnected, err)
	}
	return nil
}

// Done is closed once the channel is unusable.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err reports why the channel ended.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close discards the channel.
func (c *Channel) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Channel) shutdown(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.pending = make(map[uint64]chan Ack)
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}
