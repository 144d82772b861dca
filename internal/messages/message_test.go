package messages

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_AcceptsLegacyAliases(t *testing.T) {
	m, err := Decode(json.RawMessage(`{"room":"general","user":"alice","text":"hi","time":1700000000000,"dp":"https://img/a.png"}`))
	require.NoError(t, err)

	assert.Equal(t, "alice", m.Author)
	assert.Equal(t, "https://img/a.png", m.Avatar)
	assert.Equal(t, time.UnixMilli(1700000000000), m.SentAt)
	assert.NotEmpty(t, m.ID, "id derived when missing")

	again, err := Decode(json.RawMessage(`{"room":"general","user":"alice","text":"hi","time":1700000000000}`))
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID, "redelivery derives the same id")
}

func TestDecode_PrefersCurrentFields(t *testing.T) {
	m, err := Decode(json.RawMessage(`{"id":"abc","room":"general","author":"bob","user":"ignored","text":"yo","sentAt":1700000000500}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", m.ID)
	assert.Equal(t, "bob", m.Author)
	assert.Equal(t, int64(1700000000500), m.SentAt.UnixMilli())

	_, err = Decode(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

func TestDecodeBatch_SkipsBadEntries(t *testing.T) {
	msgs, err := DecodeBatch(json.RawMessage(`[{"id":"1","text":"a"}, 7, {"id":"2","text":"b"}]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[1].ID)

	msgs, err = DecodeBatch(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDecodeSystem(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	m, err := DecodeSystem(json.RawMessage(`"alice joined"`), "general", now)
	require.NoError(t, err)
	assert.True(t, m.System)
	assert.Equal(t, "general", m.Room)
	assert.Equal(t, now, m.SentAt)
	assert.Equal(t, DeriveID("", now, "alice joined"), m.ID)

	m, err = DecodeSystem(json.RawMessage(`{"text":"bob left","sentAt":1700000001000}`), "general", now)
	require.NoError(t, err)
	assert.Equal(t, "bob left", m.Text)
	assert.Equal(t, int64(1700000001000), m.SentAt.UnixMilli())
}

func TestDeriveID_DistinguishesFields(t *testing.T) {
	at := time.UnixMilli(1)
	assert.NotEqual(t, DeriveID("ab", at, "c"), DeriveID("a", at, "bc"))
	assert.NotEqual(t, DeriveID("a", at, "c"), DeriveID("a", time.UnixMilli(2), "c"))
}

func TestNewID_Shape(t *testing.T) {
	now := time.Now()
	id := NewID(now)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]+-[0-9a-f]{8}$`), id)
	assert.True(t, strings.HasPrefix(id, strings.Split(NewID(now), "-")[0]+"-"))
	assert.NotEqual(t, id, NewID(now))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trims", in: "  hello \n", want: "hello"},
		{name: "control chars", in: "a\x00b\x07c", want: "abc"},
		{name: "keeps tabs and newlines", in: "a\tb\nc", want: "a\tb\nc"},
		{name: "keeps unicode", in: "안녕 👋", want: "안녕 👋"},
		{name: "blank", in: " \x01 ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}

	long := strings.Repeat("가", MaxLength+10)
	assert.Equal(t, MaxLength, len([]rune(Sanitize(long))))
}

func TestFormat(t *testing.T) {
	out := Format("**bold** and *soft* see https://example.com/a?b=1")
	assert.Contains(t, out, "<b>bold</b>")
	assert.Contains(t, out, "<i>soft</i>")
	assert.Contains(t, out, `href="https://example.com/a?b=1"`)
	assert.Contains(t, out, "nofollow")

	out = Format(`<script>alert(1)</script><img src=x onerror=alert(1)>`)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<img")

	assert.NotContains(t, Format("javascript:alert(1)"), "<a")
}
