package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, room, text string) Message {
	return Message{ID: id, Room: room, Author: "alice", Text: text, SentAt: time.UnixMilli(1)}
}

func recorder(l *Log) *[]Change {
	var got []Change
	l.OnChange(func(c Change) { got = append(got, c) })
	return &got
}

func TestLog_DuplicateSuppression(t *testing.T) {
	l := NewLog()
	changes := recorder(l)
	l.Reset("general")

	assert.True(t, l.ApplyIncoming(msg("1", "general", "hi")))
	assert.False(t, l.ApplyIncoming(msg("1", "general", "hi again")))
	assert.True(t, l.ApplyIncoming(msg("2", "", "no room means active room")))

	require.Equal(t, 2, l.Len())
	got, _ := l.Get("1")
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, []Change{
		{Kind: ChangeReset, Room: "general"},
		{Kind: ChangeAppend, Room: "general", ID: "1"},
		{Kind: ChangeAppend, Room: "general", ID: "2"},
	}, *changes)
}

func TestLog_ScopedToActiveRoom(t *testing.T) {
	l := NewLog()
	assert.False(t, l.ApplyIncoming(msg("1", "general", "nowhere to go")), "no active room")

	l.ReplaceHistory("general", []Message{msg("1", "general", "a"), msg("x", "random", "b"), msg("1", "general", "dup")})
	require.Equal(t, []string{"1"}, ids(l.List()))

	assert.False(t, l.ApplyIncoming(msg("2", "random", "elsewhere")))

	l.ReplaceHistory("random", []Message{msg("9", "", "fresh")})
	assert.Equal(t, "random", l.Room())
	assert.Equal(t, []string{"9"}, ids(l.List()), "nothing from the previous room survives")
}

func TestLog_EditIsIdempotent(t *testing.T) {
	l := NewLog()
	l.Reset("general")
	l.ApplyIncoming(msg("1", "general", "helo"))
	changes := recorder(l)

	assert.True(t, l.ApplyEdit("1", "hello"))
	assert.False(t, l.ApplyEdit("1", "hello"))
	assert.False(t, l.ApplyEdit("missing", "x"))
	assert.False(t, l.ApplyEdit("1", ""))

	got, _ := l.Get("1")
	assert.Equal(t, "helo", got.Text)
	assert.Equal(t, "hello", got.Body())
	assert.True(t, got.Edited())
	assert.Len(t, *changes, 1)
}

func TestLog_SystemMessagesAreNotEditable(t *testing.T) {
	l := NewLog()
	l.Reset("general")
	sys := msg("s", "general", "alice joined")
	sys.System = true
	l.ApplyIncoming(sys)

	assert.False(t, l.ApplyEdit("s", "tampered"))
	got, _ := l.Get("s")
	assert.Equal(t, "alice joined", got.Body())
}

func TestLog_DeleteIsIdempotent(t *testing.T) {
	l := NewLog()
	l.Reset("general")
	for _, id := range []string{"1", "2", "3"} {
		l.ApplyIncoming(msg(id, "general", id))
	}
	changes := recorder(l)

	assert.True(t, l.ApplyDelete("2"))
	assert.False(t, l.ApplyDelete("2"))
	assert.False(t, l.ApplyDelete("nope"))

	assert.Equal(t, []string{"1", "3"}, ids(l.List()))
	assert.Equal(t, []Change{{Kind: ChangeDelete, Room: "general", ID: "2"}}, *changes)

	// an edit racing a delete finds nothing
	assert.False(t, l.ApplyEdit("2", "late"))
}

func TestLog_DeletedMessageStaysDeleted(t *testing.T) {
	l := NewLog()
	l.Reset("general")
	m := msg("1", "general", "oops")

	require.True(t, l.ApplyIncoming(m))
	require.True(t, l.ApplyDelete("1"))
	assert.False(t, l.ApplyIncoming(m), "redelivery after delete")
	assert.Zero(t, l.Len())

	// a delete that overtakes its message still wins
	assert.False(t, l.ApplyDelete("2"))
	assert.False(t, l.ApplyIncoming(msg("2", "general", "late")))

	l.ReplaceHistory("general", []Message{m})
	assert.Equal(t, []string{"1"}, ids(l.List()), "history from the authority is canonical")
}

func TestLog_ListIsACopy(t *testing.T) {
	l := NewLog()
	l.Reset("general")
	l.ApplyIncoming(msg("1", "general", "a"))

	list := l.List()
	list[0].Text = "mutated"
	got, _ := l.Get("1")
	assert.Equal(t, "a", got.Text)
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
