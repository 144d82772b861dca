package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn is one end of an in-memory frame pipe.
type pipeConn struct {
	in     <-chan Frame
	out    chan<- Frame
	closed chan struct{}
	once   *sync.Once
}

func newPipe() (client, server *pipeConn) {
	a := make(chan Frame, 16)
	b := make(chan Frame, 16)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: a, out: b, closed: closed, once: once},
		&pipeConn{in: b, out: a, closed: closed, once: once}
}

func (p *pipeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return Frame{}, io.EOF
	}
}

func (p *pipeConn) WriteFrame(f Frame) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- f:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func readWithin(t *testing.T, p *pipeConn) Frame {
	t.Helper()
	select {
	case f := <-p.in:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestChannel_RequestResolvesWithAck(t *testing.T) {
	client, server := newPipe()
	ch := newChannel(client, nil)
	defer ch.Close()

	go func() {
		f := <-server.in
		assert.Equal(t, "create room", f.Event)
		assert.NotZero(t, f.Ack)
		_ = server.WriteFrame(Frame{Reply: f.Ack, Args: []json.RawMessage{json.RawMessage(`false`), json.RawMessage(`"Room exists"`)}})
	}()

	ack, err := ch.Request(context.Background(), "create room", "general")
	require.NoError(t, err)
	ok, reason := ack.Accepted()
	assert.False(t, ok)
	assert.Equal(t, "Room exists", reason)
}

func TestChannel_DropFailsInFlightRequest(t *testing.T) {
	client, server := newPipe()
	ch := newChannel(client, nil)

	go func() {
		<-server.in
		_ = server.Close()
	}()

	_, err := ch.Request(context.Background(), "join room", "general")
	assert.ErrorIs(t, err, ErrDisconnected)

	<-ch.Done()
	assert.ErrorIs(t, ch.Emit("typing", "general"), ErrDisconnected)
	_, err = ch.Request(context.Background(), "join room", "general")
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestChannel_RequestHonoursContext(t *testing.T) {
	client, server := newPipe()
	ch := newChannel(client, nil)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ch.Request(ctx, "check username", "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the late ack is dropped without disturbing the channel
	f := readWithin(t, server)
	require.NoError(t, server.WriteFrame(Frame{Reply: f.Ack, Args: []json.RawMessage{json.RawMessage(`true`)}}))
	require.NoError(t, ch.Emit("join lobby", "alice"))
}

func TestChannel_DispatchesInOrderToSingleHandler(t *testing.T) {
	client, server := newPipe()

	var mu sync.Mutex
	var got []string
	first := func(a Args) {
		mu.Lock()
		got = append(got, "first:"+a.String(0))
		mu.Unlock()
	}
	ch := newChannel(client, map[string]Handler{"chat message": first})
	defer ch.Close()

	require.NoError(t, server.WriteFrame(Frame{Event: "chat message", Args: []json.RawMessage{json.RawMessage(`"1"`)}}))
	require.NoError(t, server.WriteFrame(Frame{Event: "chat message", Args: []json.RawMessage{json.RawMessage(`"2"`)}}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	ch.subscribe("chat message", func(a Args) {
		mu.Lock()
		got = append(got, "second:"+a.String(0))
		mu.Unlock()
	})
	require.NoError(t, server.WriteFrame(Frame{Event: "chat message", Args: []json.RawMessage{json.RawMessage(`"3"`)}}))
	require.NoError(t, server.WriteFrame(Frame{Event: "unknown", Args: nil}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:1", "first:2", "second:3"}, got)
}
