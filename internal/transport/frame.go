package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is the envelope exchanged with the authority, one per websocket
// text message. Requests carry Ack; acknowledgements carry Reply and no
// Event.
type Frame struct {
	Event string            `json:"event,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
	Ack   uint64            `json:"ack,omitempty"`
	Reply uint64            `json:"reply,omitempty"`
}

func newFrame(event string, args []any) (Frame, error) {
	f := Frame{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := marshalArg(a)
		if err != nil {
			return Frame{}, fmt.Errorf("encode %q arg %d: %w", event, i, err)
		}
		f.Args = append(f.Args, raw)
	}
	return f, nil
}

// marshalArg encodes without HTML escaping so <, > and & reach the
// authority untouched.
func marshalArg(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Args are the positional payload values of an event.
type Args []json.RawMessage

func (a Args) Len() int { return len(a) }

// Raw returns argument i or nil when absent.
func (a Args) Raw(i int) json.RawMessage {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	raw := a.Raw(i)
	if raw == nil {
		return fmt.Errorf("missing argument %d", i)
	}
	return json.Unmarshal(raw, v)
}

// String returns argument i as a string, or "" when absent or not a string.
func (a Args) String(i int) string {
	var s string
	if err := a.Decode(i, &s); err != nil {
		return ""
	}
	return s
}

// Bool returns argument i as a bool, or false when absent or not a bool.
func (a Args) Bool(i int) bool {
	var b bool
	if err := a.Decode(i, &b); err != nil {
		return false
	}
	return b
}

// Ack is the authority's answer to a request.
type Ack struct {
	Args
}

// Accepted reads the conventional (success, reason?) acknowledgement shape.
func (a Ack) Accepted() (bool, string) {
	return a.Bool(0), a.String(1)
}
