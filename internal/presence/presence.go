// Package presence keeps the list of users in the active room. The list is
// only ever replaced as a whole.
package presence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type User struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// UnmarshalJSON accepts a bare username or an object carrying the avatar
// as "dp" or "avatar".
func (u *User) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*u = User{Username: name}
		return nil
	}
	var w struct {
		Username string `json:"username"`
		User     string `json:"user"`
		Avatar   string `json:"avatar"`
		DP       string `json:"dp"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	u.Username = w.Username
	if u.Username == "" {
		u.Username = w.User
	}
	u.Avatar = w.Avatar
	if u.Avatar == "" {
		u.Avatar = w.DP
	}
	return nil
}

// Parse decodes a user list payload, dropping entries without a name.
func Parse(raw json.RawMessage) ([]User, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := users[:0]
	for _, u := range users {
		u.Username = strings.TrimSpace(u.Username)
		if u.Username != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// Tracker holds the current snapshot. Single writer, like the rest of the
// reconciler state.
type Tracker struct {
	users []User
}

func NewTracker() *Tracker { return &Tracker{} }

// Replace installs users as the new snapshot. Duplicate names keep their
// first occurrence.
func (t *Tracker) Replace(users []User) {
	seen := make(map[string]struct{}, len(users))
	next := make([]User, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u.Username]; ok {
			continue
		}
		seen[u.Username] = struct{}{}
		next = append(next, u)
	}
	t.users = next
}

// List returns a copy of the snapshot in authority order.
func (t *Tracker) List() []User {
	return append([]User(nil), t.users...)
}

func (t *Tracker) Len() int { return len(t.users) }

func (t *Tracker) Clear() { t.users = nil }
