package rooms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Room
		wantErr bool
	}{
		{name: "names", payload: `["general","random"]`, want: []Room{{Name: "general"}, {Name: "random"}}},
		{name: "objects", payload: `[{"name":"general","owner":"alice"}]`, want: []Room{{Name: "general", Owner: "alice"}}},
		{name: "owner map", payload: `{"general":"alice","lobby":null}`, want: []Room{{Name: "general", Owner: "alice"}, {Name: "lobby"}}},
		{name: "null", payload: `null`, want: nil},
		{name: "garbage", payload: `42`, wantErr: true},
		{name: "bad entry", payload: `[1]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSnapshot(json.RawMessage(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDirectory_ReplaceAllIsWholesale(t *testing.T) {
	d := NewDirectory()
	d.ReplaceAll([]Room{{Name: "b"}, {Name: "a", Owner: "alice"}})
	assert.Equal(t, []Room{{Name: "a", Owner: "alice"}, {Name: "b"}}, d.List())

	d.ReplaceAll([]Room{{Name: "c"}, {Name: ""}})
	assert.Equal(t, []Room{{Name: "c"}}, d.List())
	assert.False(t, d.Has("a"))
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_ActiveRoomRemovedBySnapshot(t *testing.T) {
	d := NewDirectory()
	d.ReplaceAll([]Room{{Name: "general"}, {Name: "random"}})
	d.SetActive("general")

	assert.False(t, d.ReplaceAll([]Room{{Name: "general"}}))
	assert.Equal(t, "general", d.Active())

	assert.True(t, d.ReplaceAll([]Room{{Name: "random"}}))
	assert.Equal(t, "", d.Active())
	assert.False(t, d.IsActive(""))
}

func TestDirectory_ValidateCreate(t *testing.T) {
	d := NewDirectory()
	d.ReplaceAll([]Room{{Name: "general"}})

	_, err := d.ValidateCreate("   ")
	assert.ErrorIs(t, err, ErrRoomNameRequired)

	_, err = d.ValidateCreate(" general ")
	assert.ErrorIs(t, err, ErrRoomExists)

	name, err := d.ValidateCreate("  random ")
	require.NoError(t, err)
	assert.Equal(t, "random", name)
	assert.False(t, d.Has("random"), "validation never mutates the mirror")
}

func TestDirectory_CanDelete(t *testing.T) {
	d := NewDirectory()
	d.ReplaceAll([]Room{{Name: "mine", Owner: "alice"}, {Name: "theirs", Owner: "bob"}, {Name: "lobby"}})

	assert.True(t, d.CanDelete("mine", "alice"))
	assert.False(t, d.CanDelete("theirs", "alice"))
	assert.False(t, d.CanDelete("lobby", ""))
	assert.False(t, d.CanDelete("missing", "alice"))
}

func TestDirectory_Unread(t *testing.T) {
	d := NewDirectory()
	d.ReplaceAll([]Room{{Name: "general"}, {Name: "random"}})
	d.SetActive("general")

	assert.False(t, d.MarkUnread("general"), "active room is never unread")
	assert.True(t, d.MarkUnread("random"))
	assert.False(t, d.MarkUnread("random"))
	assert.True(t, d.Unread("random"))

	d.SetActive("random")
	assert.False(t, d.Unread("random"))

	d.MarkUnread("general")
	d.ReplaceAll([]Room{{Name: "random"}})
	assert.False(t, d.Unread("general"), "markers for vanished rooms are dropped")
}
