package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/chatsync/internal/messages"
	"github.com/gosuda/chatsync/internal/session"
)

type lobbyPayload struct {
	Username string `json:"username"`
	DP       string `json:"dp"`
}

func (r *Reconciler) lobbyPayload() lobbyPayload {
	return lobbyPayload{Username: r.username, DP: r.avatar}
}

// Login checks the username with the authority, stores the session and
// enters the lobby, which makes the authority push the room list. Logging
// in again as the current user is a no-op.
func (r *Reconciler) Login(ctx context.Context, username, avatar string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	var already bool
	if err := r.call(func() { already = r.loggedIn && r.username == username }); err != nil {
		return err
	}
	if already {
		return nil
	}
	ack, err := r.link.Request(ctx, EventCheckUsername, username)
	if err != nil {
		return err
	}
	if ack.Bool(0) {
		return ErrUsernameTaken
	}

	var emitErr error
	err = r.call(func() {
		r.username = username
		r.avatar = avatar
		r.loggedIn = true
		r.typing.SetSelf(username)

		var last string
		if s, ok := r.store.Load(); ok && s.Username == username {
			last = s.LastRoom
		}
		if err := r.store.Save(session.Session{Username: username, LastRoom: last}); err != nil {
			log.Debug().Err(err).Msg("[reconcile] session not saved")
		}
		r.setConnected(true, nil)
		emitErr = r.link.Emit(EventJoinLobby, r.lobbyPayload())
		r.render(RoomsChanged{Rooms: r.roomViews()})
	})
	if err != nil {
		return err
	}
	if emitErr == nil {
		log.Info().Str("username", username).Msg("[reconcile] logged in")
	}
	return emitErr
}

// Resume logs in with the stored session and rejoins its last room. A last
// room the authority refuses is forgotten rather than reported. Once logged
// in, resyncing is left to the reconnect handler.
func (r *Reconciler) Resume(ctx context.Context, avatar string) error {
	if r.LoggedIn() {
		return nil
	}
	s, ok := r.store.Load()
	if !ok {
		return ErrNoSession
	}
	if err := r.Login(ctx, s.Username, avatar); err != nil {
		return err
	}
	if s.LastRoom == "" {
		return nil
	}
	err := r.JoinRoom(ctx, s.LastRoom)
	var rej *RejectedError
	if errors.As(err, &rej) {
		log.Warn().Str("room", s.LastRoom).Str("reason", rej.Reason).Msg("[reconcile] last room unavailable")
		return r.call(func() { r.persistLastRoom("") })
	}
	return err
}

// CreateRoom asks the authority for a new room. The room shows up with the
// next room list, never optimistically.
func (r *Reconciler) CreateRoom(ctx context.Context, name string) error {
	var clean string
	var invalid error
	if err := r.call(func() { clean, invalid = r.dir.ValidateCreate(name) }); err != nil {
		return err
	}
	if invalid != nil {
		return invalid
	}
	ack, err := r.link.Request(ctx, EventCreateRoom, clean)
	if err != nil {
		return err
	}
	if ok, reason := ack.Accepted(); !ok {
		return &RejectedError{Op: EventCreateRoom, Reason: reason}
	}
	return nil
}

// JoinRoom switches the active room once the authority accepts. Joining the
// active room is a no-op unless its state went stale over a reconnect.
func (r *Reconciler) JoinRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRoomNameRequired
	}
	var current bool
	if err := r.call(func() {
		current = r.dir.IsActive(name) && !r.staleUsers && !r.staleLog
	}); err != nil {
		return err
	}
	if current {
		return nil
	}
	return r.join(ctx, name)
}

func (r *Reconciler) join(ctx context.Context, name string) error {
	ack, err := r.link.Request(ctx, EventJoinRoom, name)
	if err != nil {
		return err
	}
	if ok, reason := ack.Accepted(); !ok {
		return &RejectedError{Op: EventJoinRoom, Reason: reason}
	}
	return r.call(func() { r.activate(name) })
}

func (r *Reconciler) rejoin(room string) {
	err := r.join(r.ctx, room)
	var rej *RejectedError
	switch {
	case err == nil:
	case errors.As(err, &rej):
		log.Warn().Str("room", room).Str("reason", rej.Reason).Msg("[reconcile] rejoin refused")
		r.enqueue(func() {
			if r.dir.IsActive(room) {
				r.deactivate()
				r.render(RoomsChanged{Rooms: r.roomViews()})
			}
			r.persistLastRoom("")
		})
	default:
		log.Warn().Err(err).Str("room", room).Msg("[reconcile] rejoin failed")
	}
}

// DeleteRoom asks the authority to remove a room. Only the owner succeeds,
// which the authority enforces.
func (r *Reconciler) DeleteRoom(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRoomNameRequired
	}
	return r.link.Emit(EventDeleteRoom, name)
}

// Send emits a chat message to the active room and returns its id. The
// message enters the log when the authority echoes it.
func (r *Reconciler) Send(text string) (string, error) {
	var id string
	var sendErr error
	if err := r.call(func() { id, sendErr = r.send(text) }); err != nil {
		return "", err
	}
	return id, sendErr
}

func (r *Reconciler) send(text string) (string, error) {
	text = messages.Sanitize(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	room := r.dir.Active()
	if room == "" {
		return "", ErrNoActiveRoom
	}
	id := messages.NewID(r.now())
	if err := r.link.Emit(EventChatMessage, messages.Outgoing{ID: id, Room: room, Text: text}); err != nil {
		return "", err
	}
	r.typing.Stop()
	return id, nil
}

// own returns the message if the local user may change it.
func (r *Reconciler) own(id string) (messages.Message, error) {
	m, ok := r.log.Get(id)
	if !ok || m.System || r.username == "" || m.Author != r.username {
		return messages.Message{}, ErrNotEditable
	}
	return m, nil
}

// Edit asks the authority to change one of the local user's messages. The
// log changes when the edit is echoed back.
func (r *Reconciler) Edit(id, text string) error {
	var editErr error
	err := r.call(func() {
		m, err := r.own(id)
		if err != nil {
			editErr = err
			return
		}
		text = messages.Sanitize(text)
		if text == "" {
			editErr = ErrEmptyMessage
			return
		}
		editErr = r.link.Emit(EventEditMessage, changePayload{ID: m.ID, Room: m.Room, Text: text})
	})
	if err != nil {
		return err
	}
	return editErr
}

// Delete asks the authority to remove one of the local user's messages.
func (r *Reconciler) Delete(id string) error {
	var delErr error
	err := r.call(func() {
		m, err := r.own(id)
		if err != nil {
			delErr = err
			return
		}
		delErr = r.link.Emit(EventDeleteMessage, changePayload{ID: m.ID, Room: m.Room})
	})
	if err != nil {
		return err
	}
	return delErr
}

// Keystroke feeds the typing debounce for the active room.
func (r *Reconciler) Keystroke() {
	r.enqueue(r.typing.Keystroke)
}

// SetFocused tells the reconciler whether the view has the user's
// attention; unfocused views get Notify instructions for incoming messages.
func (r *Reconciler) SetFocused(focused bool) {
	r.enqueue(func() { r.focused = focused })
}
