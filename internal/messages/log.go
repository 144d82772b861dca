package messages

import "github.com/rs/zerolog/log"

type ChangeKind int

const (
	ChangeReset ChangeKind = iota
	ChangeAppend
	ChangeEdit
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReset:
		return "reset"
	case ChangeAppend:
		return "append"
	case ChangeEdit:
		return "edit"
	case ChangeDelete:
		return "delete"
	}
	return "unknown"
}

// Change describes one effective mutation of the log. ID is empty for
// resets.
type Change struct {
	Kind ChangeKind
	Room string
	ID   string
}

// Log is the ordered message list of one room. Entries keep receipt order.
// Every apply is idempotent and only effective mutations notify listeners.
type Log struct {
	room      string
	order     []string
	byID      map[string]*Message
	deleted   map[string]struct{} // tombstones for the current scope
	listeners []func(Change)
}

func NewLog() *Log {
	return &Log{byID: make(map[string]*Message), deleted: make(map[string]struct{})}
}

// OnChange registers fn to run after each effective mutation.
func (l *Log) OnChange(fn func(Change)) {
	l.listeners = append(l.listeners, fn)
}

func (l *Log) notify(c Change) {
	for _, fn := range l.listeners {
		fn(c)
	}
}

// Room is the room the log is scoped to, or "" when none is active.
func (l *Log) Room() string { return l.room }

// Reset empties the log and rescopes it to room.
func (l *Log) Reset(room string) {
	l.room = room
	l.order = nil
	l.byID = make(map[string]*Message)
	l.deleted = make(map[string]struct{})
	l.notify(Change{Kind: ChangeReset, Room: room})
}

// ReplaceHistory installs msgs as the complete log of room. Entries for
// other rooms and repeated ids inside the batch are skipped.
func (l *Log) ReplaceHistory(room string, msgs []Message) {
	order := make([]string, 0, len(msgs))
	byID := make(map[string]*Message, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if m.Room == "" {
			m.Room = room
		}
		if m.Room != room || m.ID == "" {
			continue
		}
		if _, dup := byID[m.ID]; dup {
			continue
		}
		byID[m.ID] = &m
		order = append(order, m.ID)
	}
	l.room = room
	l.order = order
	l.byID = byID
	l.deleted = make(map[string]struct{})
	l.notify(Change{Kind: ChangeReset, Room: room})
}

// ApplyIncoming appends m unless it belongs to another room, its id is
// already present or it was deleted since the last reset.
func (l *Log) ApplyIncoming(m Message) bool {
	if l.room == "" || m.ID == "" {
		return false
	}
	if m.Room == "" {
		m.Room = l.room
	}
	if m.Room != l.room {
		log.Debug().Str("room", m.Room).Str("active", l.room).Msg("[messages] ignoring message for another room")
		return false
	}
	if _, dup := l.byID[m.ID]; dup {
		log.Debug().Str("id", m.ID).Msg("[messages] duplicate message suppressed")
		return false
	}
	if _, gone := l.deleted[m.ID]; gone {
		log.Debug().Str("id", m.ID).Msg("[messages] redelivered deleted message suppressed")
		return false
	}
	l.byID[m.ID] = &m
	l.order = append(l.order, m.ID)
	l.notify(Change{Kind: ChangeAppend, Room: l.room, ID: m.ID})
	return true
}

// ApplyEdit replaces the displayed text of id. Unknown ids, system entries
// and repeats of the current text are ignored.
func (l *Log) ApplyEdit(id, text string) bool {
	m, ok := l.byID[id]
	if !ok {
		log.Debug().Str("id", id).Msg("[messages] edit for unknown message")
		return false
	}
	if m.System || text == "" || m.Body() == text {
		return false
	}
	m.EditedText = text
	l.notify(Change{Kind: ChangeEdit, Room: l.room, ID: id})
	return true
}

// ApplyDelete removes id and remembers it so a redelivered copy stays
// gone. Unknown ids change nothing visible.
func (l *Log) ApplyDelete(id string) bool {
	if l.room != "" && id != "" {
		l.deleted[id] = struct{}{}
	}
	if _, ok := l.byID[id]; !ok {
		log.Debug().Str("id", id).Msg("[messages] delete for unknown message")
		return false
	}
	delete(l.byID, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.notify(Change{Kind: ChangeDelete, Room: l.room, ID: id})
	return true
}

func (l *Log) Get(id string) (Message, bool) {
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// List returns a copy of the log in receipt order.
func (l *Log) List() []Message {
	out := make([]Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

func (l *Log) Len() int { return len(l.order) }
