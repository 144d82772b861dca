package reconcile

import (
	"time"

	"github.com/gosuda/chatsync/internal/messages"
	"github.com/gosuda/chatsync/internal/presence"
)

// View consumes render instructions. Render is called on the reconciler's
// goroutine and must not call back into the Reconciler synchronously.
type View interface {
	Render(Instruction)
}

// ViewFunc adapts a function to View.
type ViewFunc func(Instruction)

func (f ViewFunc) Render(in Instruction) { f(in) }

type Instruction interface {
	instruction()
}

type RoomView struct {
	Name      string `json:"name"`
	Owner     string `json:"owner,omitempty"`
	Active    bool   `json:"active,omitempty"`
	Unread    bool   `json:"unread,omitempty"`
	Deletable bool   `json:"deletable,omitempty"`
}

type MessageView struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	Time      string    `json:"time"`
	SentAt    time.Time `json:"sentAt"`
	System    bool      `json:"system,omitempty"`
	Edited    bool      `json:"edited,omitempty"`
	Editable  bool      `json:"editable,omitempty"`
	Deletable bool      `json:"deletable,omitempty"`
}

type (
	RoomsChanged struct {
		Rooms []RoomView
	}
	ActiveRoomChanged struct {
		Room string
	}
	PresenceChanged struct {
		Users []presence.User
	}
	LogReset struct {
		Room     string
		Messages []MessageView
	}
	MessageAppended struct {
		Message MessageView
	}
	MessageEdited struct {
		Message MessageView
	}
	MessageDeleted struct {
		ID string
	}
	TypingCaption struct {
		Text string
	}
	ConnectionChanged struct {
		Connected bool
		Err       error
	}
	// Notify asks the view to raise a notification. Author and Text are
	// empty for unread markers on other rooms.
	Notify struct {
		Room   string
		Author string
		Text   string
	}
)

func (RoomsChanged) instruction()      {}
func (ActiveRoomChanged) instruction() {}
func (PresenceChanged) instruction()   {}
func (LogReset) instruction()          {}
func (MessageAppended) instruction()   {}
func (MessageEdited) instruction()     {}
func (MessageDeleted) instruction()    {}
func (TypingCaption) instruction()     {}
func (ConnectionChanged) instruction() {}
func (Notify) instruction()            {}

func (r *Reconciler) messageView(m messages.Message) MessageView {
	own := !m.System && r.username != "" && m.Author == r.username
	return MessageView{
		ID:        m.ID,
		Room:      m.Room,
		Author:    m.Author,
		Avatar:    m.Avatar,
		Text:      m.Body(),
		HTML:      messages.Format(m.Body()),
		Time:      m.SentAt.Local().Format("15:04"),
		SentAt:    m.SentAt,
		System:    m.System,
		Edited:    m.Edited(),
		Editable:  own,
		Deletable: own,
	}
}

func (r *Reconciler) messageViews() []MessageView {
	list := r.log.List()
	out := make([]MessageView, 0, len(list))
	for _, m := range list {
		out = append(out, r.messageView(m))
	}
	return out
}

func (r *Reconciler) roomViews() []RoomView {
	list := r.dir.List()
	out := make([]RoomView, 0, len(list))
	for _, room := range list {
		out = append(out, RoomView{
			Name:      room.Name,
			Owner:     room.Owner,
			Active:    r.dir.IsActive(room.Name),
			Unread:    r.dir.Unread(room.Name),
			Deletable: r.dir.CanDelete(room.Name, r.username),
		})
	}
	return out
}

func (r *Reconciler) render(in Instruction) {
	if r.view != nil {
		r.view.Render(in)
	}
}
