package reconcile

import (
	"errors"

	"github.com/gosuda/chatsync/internal/messages"
	"github.com/gosuda/chatsync/internal/rooms"
	"github.com/gosuda/chatsync/internal/session"
)

// Validation errors are returned before anything is sent.
var (
	ErrUsernameRequired = session.ErrUsernameRequired
	ErrRoomNameRequired = rooms.ErrRoomNameRequired
	ErrRoomExists       = rooms.ErrRoomExists
	ErrEmptyMessage     = messages.ErrEmptyMessage
	ErrNoActiveRoom     = errors.New("no active room")
	ErrNotEditable      = errors.New("message cannot be changed")
	ErrNoSession        = errors.New("no stored session")
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrClosed        = errors.New("reconciler closed")
)

// RejectedError carries the authority's refusal of a request. Local state
// is left as it was.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return e.Op + ": rejected"
	}
	return e.Op + ": " + e.Reason
}
