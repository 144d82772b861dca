package reconcile

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/chatsync/internal/session"
	"github.com/gosuda/chatsync/internal/transport"
	"github.com/gosuda/chatsync/internal/typing"
)

type sent struct {
	event string
	args  []any
}

// fakeLink stands in for the connection manager. Requests are answered by
// per-event responders; otherwise usernames are free and everything else is
// accepted.
type fakeLink struct {
	mu       sync.Mutex
	handlers map[string]transport.Handler
	emits    []sent
	requests []sent
	respond  map[string]func(args []any) (transport.Ack, error)
	down     []func(error)
	up       []func()
	offline  bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		handlers: make(map[string]transport.Handler),
		respond:  make(map[string]func([]any) (transport.Ack, error)),
	}
}

func (f *fakeLink) Emit(event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return transport.ErrDisconnected
	}
	f.emits = append(f.emits, sent{event, args})
	return nil
}

func (f *fakeLink) Request(_ context.Context, event string, args ...any) (transport.Ack, error) {
	f.mu.Lock()
	if f.offline {
		f.mu.Unlock()
		return transport.Ack{}, transport.ErrDisconnected
	}
	f.requests = append(f.requests, sent{event, args})
	fn := f.respond[event]
	f.mu.Unlock()
	if fn == nil {
		if event == EventCheckUsername {
			return ack(false), nil
		}
		return ack(true), nil
	}
	return fn(args)
}

func (f *fakeLink) Subscribe(event string, h transport.Handler) {
	f.mu.Lock()
	f.handlers[event] = h
	f.mu.Unlock()
}

func (f *fakeLink) OnDisconnected(fn func(error)) {
	f.mu.Lock()
	f.down = append(f.down, fn)
	f.mu.Unlock()
}

func (f *fakeLink) OnReconnected(fn func()) {
	f.mu.Lock()
	f.up = append(f.up, fn)
	f.mu.Unlock()
}

func (f *fakeLink) answer(event string, a transport.Ack) {
	f.mu.Lock()
	f.respond[event] = func([]any) (transport.Ack, error) { return a, nil }
	f.mu.Unlock()
}

// push delivers an inbound event the way the channel reader does.
func (f *fakeLink) push(t *testing.T, event string, args ...any) {
	t.Helper()
	raw := make(transport.Args, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		raw = append(raw, b)
	}
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler for %q", event)
	h(raw)
}

func (f *fakeLink) drop(err error) {
	f.mu.Lock()
	f.offline = true
	fns := slices.Clone(f.down)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (f *fakeLink) restore() {
	f.mu.Lock()
	f.offline = false
	fns := slices.Clone(f.up)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeLink) emitted(event string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.emits {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeLink) emittedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.emits))
	for _, s := range f.emits {
		out = append(out, s.event)
	}
	return out
}

func (f *fakeLink) requested(event string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.requests {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func ack(vals ...any) transport.Ack {
	args := make(transport.Args, 0, len(vals))
	for _, v := range vals {
		b, _ := json.Marshal(v)
		args = append(args, b)
	}
	return transport.Ack{Args: args}
}

type recView struct {
	mu  sync.Mutex
	got []Instruction
}

func (v *recView) Render(in Instruction) {
	v.mu.Lock()
	v.got = append(v.got, in)
	v.mu.Unlock()
}

func (v *recView) reset() {
	v.mu.Lock()
	v.got = nil
	v.mu.Unlock()
}

func rendered[T Instruction](v *recView) []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []T
	for _, in := range v.got {
		if x, ok := in.(T); ok {
			out = append(out, x)
		}
	}
	return out
}

type harness struct {
	r     *Reconciler
	link  *fakeLink
	view  *recView
	store *session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{link: newFakeLink(), view: &recView{}, store: session.NewMemoryStore()}
	h.r = New(Config{
		Link:          h.link,
		Session:       h.store,
		View:          h.view,
		TypingTimeout: time.Hour,
		CaptionTTL:    time.Hour,
	})
	t.Cleanup(func() { _ = h.r.Close() })
	return h
}

// state drains every queued command and returns the snapshot.
func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, err := h.r.State()
	require.NoError(t, err)
	return st
}

func (h *harness) login(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, h.r.Login(context.Background(), name, ""))
}

func (h *harness) enter(t *testing.T, room string) {
	t.Helper()
	require.NoError(t, h.r.JoinRoom(context.Background(), room))
	h.link.push(t, EventJoinedRoom, room, []string{"alice", "bob"})
}

func chat(id, room, author, text string) map[string]any {
	return map[string]any{"id": id, "room": room, "author": author, "text": text, "sentAt": 1700000000000}
}

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

var _ typing.Timer = stubTimer{}
