// Package rooms mirrors the authority's room set and tracks which room is
// active on this client.
package rooms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrRoomNameRequired = errors.New("room name required")
	ErrRoomExists       = errors.New("room already exists")
)

// Room is one entry of the authority's room list. Owner is empty when the
// authority did not report one.
type Room struct {
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

// Directory holds the latest room snapshot, the active room pointer and the
// set of rooms with unseen messages. It is not safe for concurrent use; the
// reconciler is its only writer.
type Directory struct {
	rooms  map[string]Room
	active string
	unread map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:  make(map[string]Room),
		unread: make(map[string]struct{}),
	}
}

// ReplaceAll swaps in a fresh snapshot. It reports whether the active room
// vanished from the snapshot, in which case the directory no longer has an
// active room.
func (d *Directory) ReplaceAll(list []Room) (lostActive bool) {
	next := make(map[string]Room, len(list))
	for _, r := range list {
		if r.Name == "" {
			continue
		}
		next[r.Name] = r
	}
	d.rooms = next
	for name := range d.unread {
		if _, ok := next[name]; !ok {
			delete(d.unread, name)
		}
	}
	if d.active != "" {
		if _, ok := next[d.active]; !ok {
			d.active = ""
			return true
		}
	}
	return false
}

// List returns the rooms sorted by name.
func (d *Directory) List() []Room {
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Directory) Has(name string) bool {
	_, ok := d.rooms[name]
	return ok
}

func (d *Directory) Get(name string) (Room, bool) {
	r, ok := d.rooms[name]
	return r, ok
}

func (d *Directory) Len() int { return len(d.rooms) }

// Active returns the active room name, or "" when none.
func (d *Directory) Active() string { return d.active }

func (d *Directory) IsActive(name string) bool {
	return name != "" && d.active == name
}

// SetActive makes name the active room and clears its unread marker. The
// authority confirmed the join, so the room need not be in the snapshot yet.
func (d *Directory) SetActive(name string) {
	d.active = name
	delete(d.unread, name)
}

func (d *Directory) Deactivate() { d.active = "" }

// ValidateCreate trims name and checks it against the local mirror.
func (d *Directory) ValidateCreate(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameRequired
	}
	if d.Has(name) {
		return "", ErrRoomExists
	}
	return name, nil
}

// CanDelete reports whether self owns the room. The authority still has the
// final say.
func (d *Directory) CanDelete(name, self string) bool {
	r, ok := d.rooms[name]
	return ok && self != "" && r.Owner == self
}

// MarkUnread flags a non-active room. It reports whether anything changed.
func (d *Directory) MarkUnread(name string) bool {
	if name == "" || name == d.active {
		return false
	}
	if _, ok := d.unread[name]; ok {
		return false
	}
	d.unread[name] = struct{}{}
	return true
}

func (d *Directory) Unread(name string) bool {
	_, ok := d.unread[name]
	return ok
}

// ParseSnapshot decodes a room list payload. The authority sends either an
// array of names (or of {name, owner} objects) or an object mapping each
// name to its owner, where the owner may be null.
func ParseSnapshot(raw json.RawMessage) ([]Room, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode room list: %w", err)
		}
		out := make([]Room, 0, len(items))
		for _, item := range items {
			var name string
			if err := json.Unmarshal(item, &name); err == nil {
				out = append(out, Room{Name: name})
				continue
			}
			var r Room
			if err := json.Unmarshal(item, &r); err != nil {
				return nil, fmt.Errorf("decode room entry: %w", err)
			}
			out = append(out, r)
		}
		return out, nil
	case '{':
		var m map[string]*string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode room map: %w", err)
		}
		out := make([]Room, 0, len(m))
		for name, owner := range m {
			r := Room{Name: name}
			if owner != nil {
				r.Owner = *owner
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode room list: unexpected payload %.20q", raw)
	}
}
