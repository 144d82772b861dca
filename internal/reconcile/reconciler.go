// Package reconcile is the single writer of the client's chat state. It
// binds inbound authority events to the room directory, presence tracker,
// message log and typing coordinator, and turns local actions into requests.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/chatsync/internal/messages"
	"github.com/gosuda/chatsync/internal/presence"
	"github.com/gosuda/chatsync/internal/rooms"
	"github.com/gosuda/chatsync/internal/session"
	"github.com/gosuda/chatsync/internal/transport"
	"github.com/gosuda/chatsync/internal/typing"
)

// Link is the slice of the connection manager the reconciler needs.
type Link interface {
	Emit(event string, args ...any) error
	Request(ctx context.Context, event string, args ...any) (transport.Ack, error)
	Subscribe(event string, h transport.Handler)
	OnDisconnected(func(error))
	OnReconnected(func())
}

type Config struct {
	Link    Link
	Session *session.Store
	View    View

	TypingTimeout time.Duration
	CaptionTTL    time.Duration

	// AfterFunc schedules typing timers; defaults to time.AfterFunc. The
	// callback is always re-enqueued onto the reconciler loop.
	AfterFunc func(d time.Duration, fn func()) typing.Timer
	Now       func() time.Time
}

type Reconciler struct {
	link  Link
	store *session.Store
	view  View
	now   func() time.Time

	dir    *rooms.Directory
	users  *presence.Tracker
	log    *messages.Log
	typing *typing.Coordinator

	username  string
	avatar    string
	loggedIn  bool
	connected bool
	focused   bool

	// set after a reconnect until fresh snapshots arrive
	staleUsers bool
	staleLog   bool

	// cancelled on Close; bounds background rejoins
	ctx    context.Context
	cancel context.CancelFunc

	commands  chan func()
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg Config) *Reconciler {
	if cfg.Session == nil {
		cfg.Session = session.NewMemoryStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, fn func()) typing.Timer { return time.AfterFunc(d, fn) }
	}
	r := &Reconciler{
		link:     cfg.Link,
		store:    cfg.Session,
		view:     cfg.View,
		now:      cfg.Now,
		dir:      rooms.NewDirectory(),
		users:    presence.NewTracker(),
		log:      messages.NewLog(),
		focused:  true,
		commands: make(chan func(), 256),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	afterFunc := cfg.AfterFunc
	r.typing = typing.New(typing.Config{
		Timeout:    cfg.TypingTimeout,
		CaptionTTL: cfg.CaptionTTL,
		Scheduler: typing.SchedulerFunc(func(d time.Duration, fn func()) typing.Timer {
			return afterFunc(d, func() { r.enqueue(fn) })
		}),
		Emit: func(event, room string) {
			if err := r.link.Emit(event, room); err != nil {
				log.Debug().Err(err).Str("event", event).Str("room", room).Msg("[reconcile] typing signal not sent")
			}
		},
		OnCaption: func(s string) { r.render(TypingCaption{Text: s}) },
	})
	r.log.OnChange(r.logChanged)
	r.bind()
	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.commands:
			fn()
		case <-r.closing:
			r.typing.Reset()
			return
		}
	}
}

// enqueue blocks until the loop accepts fn. Nothing is ever dropped; it
// only gives up once the reconciler is closed.
func (r *Reconciler) enqueue(fn func()) bool {
	select {
	case r.commands <- fn:
		return true
	case <-r.closing:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (r *Reconciler) call(fn func()) error {
	done := make(chan struct{})
	if !r.enqueue(func() { fn(); close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// Close stops the loop. Pending timers become no-ops.
func (r *Reconciler) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		close(r.closing)
	})
	<-r.done
	return nil
}

func (r *Reconciler) logChanged(c messages.Change) {
	switch c.Kind {
	case messages.ChangeReset:
		r.render(LogReset{Room: c.Room, Messages: r.messageViews()})
	case messages.ChangeAppend:
		if m, ok := r.log.Get(c.ID); ok {
			r.render(MessageAppended{Message: r.messageView(m)})
		}
	case messages.ChangeEdit:
		if m, ok := r.log.Get(c.ID); ok {
			r.render(MessageEdited{Message: r.messageView(m)})
		}
	case messages.ChangeDelete:
		r.render(MessageDeleted{ID: c.ID})
	}
}

// activate makes room the active room. Re-activating the active room only
// refreshes the persisted pointer.
func (r *Reconciler) activate(room string) {
	if r.dir.IsActive(room) {
		r.persistLastRoom(room)
		return
	}
	r.dir.SetActive(room)
	r.typing.SwitchRoom(room)
	r.users.Clear()
	r.log.Reset(room)
	r.staleUsers, r.staleLog = false, false
	log.Debug().Str("room", room).Msg("[reconcile] room activated")

	r.render(ActiveRoomChanged{Room: room})
	r.render(PresenceChanged{Users: nil})
	r.render(RoomsChanged{Rooms: r.roomViews()})
	r.persistLastRoom(room)
}

func (r *Reconciler) deactivate() {
	r.dir.Deactivate()
	r.typing.SwitchRoom("")
	r.users.Clear()
	r.log.Reset("")
	r.render(ActiveRoomChanged{Room: ""})
	r.render(PresenceChanged{Users: nil})
}

func (r *Reconciler) persistLastRoom(room string) {
	if r.username == "" {
		return
	}
	if err := r.store.Save(session.Session{Username: r.username, LastRoom: room}); err != nil {
		log.Debug().Err(err).Msg("[reconcile] session not saved")
	}
}

func (r *Reconciler) setConnected(up bool, cause error) {
	if r.connected == up {
		return
	}
	r.connected = up
	r.render(ConnectionChanged{Connected: up, Err: cause})
}

// State is a read-only snapshot for views and diagnostics.
type State struct {
	Username   string           `json:"username"`
	LoggedIn   bool             `json:"loggedIn"`
	Connected  bool             `json:"connected"`
	Focused    bool             `json:"focused"`
	ActiveRoom string           `json:"activeRoom,omitempty"`
	Rooms      []RoomView       `json:"rooms"`
	Users      []presence.User  `json:"users"`
	Messages   []MessageView    `json:"messages"`
	Caption    string           `json:"caption,omitempty"`
	Typing     bool             `json:"typing"`
	Stale      map[string]bool  `json:"stale,omitempty"`
	Session    *session.Session `json:"session,omitempty"`
}

// LoggedIn reports whether this client already holds its username.
func (r *Reconciler) LoggedIn() bool {
	var in bool
	if err := r.call(func() { in = r.loggedIn }); err != nil {
		return false
	}
	return in
}

func (r *Reconciler) State() (State, error) {
	var st State
	err := r.call(func() {
		st = State{
			Username:   r.username,
			LoggedIn:   r.loggedIn,
			Connected:  r.connected,
			Focused:    r.focused,
			ActiveRoom: r.dir.Active(),
			Rooms:      r.roomViews(),
			Users:      r.users.List(),
			Messages:   r.messageViews(),
			Caption:    r.typing.Caption(),
			Typing:     r.typing.Typing(),
		}
		if r.staleUsers || r.staleLog {
			st.Stale = map[string]bool{"users": r.staleUsers, "log": r.staleLog}
		}
		if s, ok := r.store.Load(); ok {
			st.Session = &s
		}
	})
	return st, err
}
