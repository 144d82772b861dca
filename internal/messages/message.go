// Package messages holds the message log of the active room together with
// the helpers that turn wire payloads into log entries.
package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message is empty")

// Message is one log entry. ID never changes once assigned. EditedText is
// empty until the authority confirms an edit.
type Message struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	Author     string    `json:"author,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
	System     bool      `json:"system,omitempty"`
	EditedText string    `json:"editedText,omitempty"`
}

// Body is the text to display.
func (m Message) Body() string {
	if m.EditedText != "" {
		return m.EditedText
	}
	return m.Text
}

func (m Message) Edited() bool { return m.EditedText != "" }

// Outgoing is the payload of a locally sent chat message.
type Outgoing struct {
	ID   string `json:"id"`
	Room string `json:"room"`
	Text string `json:"text"`
}

// wireMessage accepts the current field names and the legacy aliases
// (user, time, dp) older authorities still send.
type wireMessage struct {
	ID     string   `json:"id"`
	Room   string   `json:"room"`
	Author string   `json:"author"`
	User   string   `json:"user"`
	Text   string   `json:"text"`
	SentAt *float64 `json:"sentAt"`
	Time   *float64 `json:"time"`
	Avatar string   `json:"avatar"`
	DP     string   `json:"dp"`
}

// Decode turns a chat message payload into a Message. A payload without an
// id gets one derived from its content so redelivery still dedupes.
func Decode(raw json.RawMessage) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	m := Message{
		ID:     strings.TrimSpace(w.ID),
		Room:   w.Room,
		Author: firstNonEmpty(w.Author, w.User),
		Avatar: firstNonEmpty(w.Avatar, w.DP),
		Text:   w.Text,
		SentAt: millis(w.SentAt, w.Time),
	}
	if m.ID == "" {
		m.ID = DeriveID(m.Author, m.SentAt, m.Text)
	}
	return m, nil
}

// DecodeBatch decodes a history payload, skipping entries that fail to
// decode.
func DecodeBatch(raw json.RawMessage) ([]Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	out := make([]Message, 0, len(items))
	for _, item := range items {
		m, err := Decode(item)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// DecodeSystem turns a system message payload, either {text, sentAt} or a
// bare string, into a system entry for room.
func DecodeSystem(raw json.RawMessage, room string, now time.Time) (Message, error) {
	var w wireMessage
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &w.Text); err != nil {
			return Message{}, fmt.Errorf("decode system message: %w", err)
		}
	} else if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, fmt.Errorf("decode system message: %w", err)
	}
	m := Message{
		ID:     strings.TrimSpace(w.ID),
		Room:   firstNonEmpty(w.Room, room),
		Text:   w.Text,
		SentAt: millis(w.SentAt, w.Time),
		System: true,
	}
	if m.SentAt.IsZero() {
		m.SentAt = now
	}
	if m.ID == "" {
		m.ID = DeriveID("", m.SentAt, m.Text)
	}
	return m, nil
}

// DeriveID hashes the identifying fields of a message that arrived without
// an id.
func DeriveID(author string, sentAt time.Time, text string) string {
	d := xxhash.New()
	_, _ = d.WriteString(author)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.FormatInt(sentAt.UnixMilli(), 10))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(text)
	return "h" + strconv.FormatUint(d.Sum64(), 36)
}

// NewID generates a client message id: base36 of the send time, a dash and
// eight hex digits of a random UUID.
func NewID(now time.Time) string {
	u := uuid.New()
	return strconv.FormatInt(now.UnixNano(), 36) + "-" + fmt.Sprintf("%x", u[:4])
}

func millis(vals ...*float64) time.Time {
	for _, v := range vals {
		if v == nil || *v <= 0 || math.IsInf(*v, 0) || math.IsNaN(*v) {
			continue
		}
		return time.UnixMilli(int64(*v))
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
