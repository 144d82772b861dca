package reconcile

import (
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chatsync/internal/messages"
	"github.com/gosuda/chatsync/internal/presence"
	"github.com/gosuda/chatsync/internal/rooms"
	"github.com/gosuda/chatsync/internal/transport"
)

// Authority event names.
const (
	EventCheckUsername   = "check username"
	EventJoinLobby       = "join lobby"
	EventRoomList        = "room list"
	EventCreateRoom      = "create room"
	EventJoinRoom        = "join room"
	EventDeleteRoom      = "delete room"
	EventJoinedRoom      = "joined room"
	EventRoomHistory     = "room history"
	EventRoomUsers       = "room users"
	EventChatMessage     = "chat message"
	EventEditMessage     = "edit message"
	EventDeleteMessage   = "delete message"
	EventSystemMessage   = "system message"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventNewNotification = "new message notification"
)

// bind wires every inbound event to a loop command. Handlers run on the
// channel's reader goroutine, so enqueueing in arrival order keeps FIFO.
func (r *Reconciler) bind() {
	on := func(event string, fn func(transport.Args)) {
		r.link.Subscribe(event, func(a transport.Args) {
			r.enqueue(func() { fn(a) })
		})
	}
	on(EventRoomList, r.onRoomList)
	on(EventJoinedRoom, r.onJoinedRoom)
	on(EventRoomUsers, r.onRoomUsers)
	on(EventRoomHistory, r.onRoomHistory)
	on(EventChatMessage, r.onChatMessage)
	on(EventEditMessage, r.onEditMessage)
	on(EventDeleteMessage, r.onDeleteMessage)
	on(EventSystemMessage, r.onSystemMessage)
	on(EventTyping, func(a transport.Args) { r.typing.Remote(typingUser(a), true) })
	on(EventStopTyping, func(a transport.Args) { r.typing.Remote(typingUser(a), false) })
	on(EventNewNotification, r.onNewNotification)

	r.link.OnDisconnected(func(err error) { r.enqueue(func() { r.onDisconnected(err) }) })
	r.link.OnReconnected(func() { r.enqueue(r.onReconnected) })
}

func (r *Reconciler) onRoomList(a transport.Args) {
	list, err := rooms.ParseSnapshot(a.Raw(0))
	if err != nil {
		log.Warn().Err(err).Msg("[reconcile] bad room list")
		return
	}
	if r.dir.ReplaceAll(list) {
		log.Info().Msg("[reconcile] active room no longer listed")
		r.deactivate()
	}
	r.render(RoomsChanged{Rooms: r.roomViews()})
}

func (r *Reconciler) onJoinedRoom(a transport.Args) {
	room := a.String(0)
	if room == "" {
		return
	}
	r.activate(room)
	if a.Len() > 1 {
		r.replaceUsers(a.Raw(1))
	}
}

func (r *Reconciler) onRoomUsers(a transport.Args) {
	if r.dir.Active() == "" {
		return
	}
	r.replaceUsers(a.Raw(0))
}

func (r *Reconciler) replaceUsers(raw []byte) {
	users, err := presence.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("[reconcile] bad user list")
		return
	}
	r.users.Replace(users)
	r.staleUsers = false
	r.render(PresenceChanged{Users: r.users.List()})
}

func (r *Reconciler) onRoomHistory(a transport.Args) {
	room := r.dir.Active()
	if room == "" {
		log.Debug().Msg("[reconcile] history without active room")
		return
	}
	batch, err := messages.DecodeBatch(a.Raw(0))
	if err != nil {
		log.Warn().Err(err).Msg("[reconcile] bad history")
		return
	}
	r.log.ReplaceHistory(room, batch)
	r.staleLog = false
}

func (r *Reconciler) onChatMessage(a transport.Args) {
	m, err := messages.Decode(a.Raw(0))
	if err != nil {
		log.Warn().Err(err).Msg("[reconcile] bad chat message")
		return
	}
	if !r.log.ApplyIncoming(m) {
		return
	}
	if m.Author != r.username && !r.focused {
		r.render(Notify{Room: r.dir.Active(), Author: m.Author, Text: m.Text})
	}
}

type changePayload struct {
	ID   string `json:"id"`
	Room string `json:"room"`
	Text string `json:"text,omitempty"`
}

func (r *Reconciler) decodeChange(a transport.Args) (changePayload, bool) {
	var p changePayload
	if err := a.Decode(0, &p); err != nil || p.ID == "" {
		log.Debug().Err(err).Msg("[reconcile] bad change payload")
		return p, false
	}
	if p.Room != "" && p.Room != r.dir.Active() {
		return p, false
	}
	return p, true
}

func (r *Reconciler) onEditMessage(a transport.Args) {
	if p, ok := r.decodeChange(a); ok {
		r.log.ApplyEdit(p.ID, messages.Sanitize(p.Text))
	}
}

func (r *Reconciler) onDeleteMessage(a transport.Args) {
	if p, ok := r.decodeChange(a); ok {
		r.log.ApplyDelete(p.ID)
	}
}

func (r *Reconciler) onSystemMessage(a transport.Args) {
	room := r.dir.Active()
	if room == "" {
		return
	}
	m, err := messages.DecodeSystem(a.Raw(0), room, r.now())
	if err != nil {
		log.Warn().Err(err).Msg("[reconcile] bad system message")
		return
	}
	r.log.ApplyIncoming(m)
}

func (r *Reconciler) onNewNotification(a transport.Args) {
	room := a.String(0)
	if room == "" || r.dir.IsActive(room) {
		return
	}
	if r.dir.MarkUnread(room) {
		r.render(RoomsChanged{Rooms: r.roomViews()})
	}
	r.render(Notify{Room: room})
}

// typingUser accepts a bare username or an object naming one.
func typingUser(a transport.Args) string {
	if s := a.String(0); s != "" {
		return s
	}
	var p struct {
		Username string `json:"username"`
		User     string `json:"user"`
	}
	if err := a.Decode(0, &p); err != nil {
		return ""
	}
	if p.Username != "" {
		return p.Username
	}
	return p.User
}

func (r *Reconciler) onDisconnected(err error) {
	log.Warn().Err(err).Msg("[reconcile] disconnected")
	r.typing.Reset()
	if r.dir.Active() != "" {
		r.staleUsers, r.staleLog = true, true
	}
	r.setConnected(false, err)
}

func (r *Reconciler) onReconnected() {
	r.setConnected(true, nil)
	if !r.loggedIn {
		return
	}
	if err := r.link.Emit(EventJoinLobby, r.lobbyPayload()); err != nil {
		log.Warn().Err(err).Msg("[reconcile] join lobby after reconnect failed")
		return
	}
	room := r.dir.Active()
	if room == "" {
		if s, ok := r.store.Load(); ok && s.Username == r.username {
			room = s.LastRoom
		}
	}
	if room == "" {
		return
	}
	log.Info().Str("room", room).Msg("[reconcile] rejoining after reconnect")
	go r.rejoin(room)
}
