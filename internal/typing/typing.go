// Package typing debounces the local user's typing signal and keeps the
// caption describing who else is typing.
package typing

import (
	"time"
)

const (
	DefaultTimeout    = 1200 * time.Millisecond
	DefaultCaptionTTL = 5 * time.Second

	EventTyping     = "typing"
	EventStopTyping = "stop typing"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d. Callbacks must be delivered on the goroutine
// that owns the Coordinator.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, fn func()) Timer

func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Timer { return f(d, fn) }

type Config struct {
	Timeout    time.Duration
	CaptionTTL time.Duration
	Scheduler  Scheduler
	// Emit sends "typing" or "stop typing" for room.
	Emit func(event, room string)
	// OnCaption is called whenever the caption text changes.
	OnCaption func(caption string)
}

// Coordinator is an Idle/Typing machine for the active room. It is not safe
// for concurrent use.
type Coordinator struct {
	cfg  Config
	self string

	room   string
	typing bool
	timer  Timer
	gen    uint64

	caption      string
	captionTimer Timer
	captionGen   uint64
}

func New(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CaptionTTL <= 0 {
		cfg.CaptionTTL = DefaultCaptionTTL
	}
	if cfg.Emit == nil {
		cfg.Emit = func(string, string) {}
	}
	if cfg.OnCaption == nil {
		cfg.OnCaption = func(string) {}
	}
	return &Coordinator{cfg: cfg}
}

// SetSelf names the local user so its own echoed signals are ignored.
func (c *Coordinator) SetSelf(username string) { c.self = username }

func (c *Coordinator) Room() string { return c.room }

func (c *Coordinator) Typing() bool { return c.typing }

func (c *Coordinator) Caption() string { return c.caption }

// Keystroke signals typing on the first key and re-arms the inactivity
// timer on every key.
func (c *Coordinator) Keystroke() {
	if c.room == "" {
		return
	}
	if !c.typing {
		c.typing = true
		c.cfg.Emit(EventTyping, c.room)
	}
	c.arm()
}

func (c *Coordinator) arm() {
	c.cancel()
	gen := c.gen
	c.timer = c.cfg.Scheduler.AfterFunc(c.cfg.Timeout, func() {
		if gen != c.gen {
			return
		}
		c.Stop()
	})
}

func (c *Coordinator) cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Stop ends the typing state, emitting one stop for the current room.
func (c *Coordinator) Stop() {
	c.cancel()
	if !c.typing {
		return
	}
	c.typing = false
	c.cfg.Emit(EventStopTyping, c.room)
}

// SwitchRoom stops typing in the old room, then rescopes to room and
// clears the caption.
func (c *Coordinator) SwitchRoom(room string) {
	c.Stop()
	c.room = room
	c.setCaption("")
}

// Reset drops all state without emitting anything. Used when the channel is
// gone and nothing can be sent.
func (c *Coordinator) Reset() {
	c.cancel()
	c.typing = false
	c.setCaption("")
}

// Remote applies a typing signal about another user. The latest signal
// overwrites the caption.
func (c *Coordinator) Remote(user string, typing bool) {
	if user != "" && user == c.self {
		return
	}
	if !typing || user == "" {
		c.setCaption("")
		return
	}
	c.setCaption(user + " is typing...")
	gen := c.captionGen
	c.captionTimer = c.cfg.Scheduler.AfterFunc(c.cfg.CaptionTTL, func() {
		if gen != c.captionGen {
			return
		}
		c.setCaption("")
	})
}

func (c *Coordinator) setCaption(s string) {
	c.captionGen++
	if c.captionTimer != nil {
		c.captionTimer.Stop()
		c.captionTimer = nil
	}
	if s == c.caption {
		return
	}
	c.caption = s
	c.cfg.OnCaption(s)
}
