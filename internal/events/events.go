// Package events defines the JSON vocabulary exchanged with connected
// clients: the frame envelope, inbound requests and outbound notifications.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event is an outbound notification delivered to clients.
type Event interface {
	EventName() string
}

// Frame is the wire envelope used in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps evt in a Frame and marshals it.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	return json.Marshal(Frame{Event: evt.EventName(), Data: data})
}

// DecodeFrame parses an inbound frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event name")
	}
	return f, nil
}

// ID is an opaque identifier. Clients send user, room and message IDs either
// as JSON strings or as JSON numbers; both decode to the same ID.
type ID string

// UnmarshalJSON accepts a string or a number.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	err := json.Unmarshal(b, &n)
	if err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id, err = normalizeNumber(n.String())
	return err
}

// normalizeNumber gives every spelling of a number one identity, so 7, 7.0
// and 7e0 all become "7". Plain integers keep their digits exactly.
func normalizeNumber(s string) (ID, error) {
	if strings.Trim(s, "-0123456789") == "" {
		if s == "-0" {
			return "0", nil
		}
		return ID(s), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("id must be a string or a number: %w", err)
	}
	if f == 0 {
		f = 0
	}
	return ID(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// String returns the ID as a plain string.
func (id ID) String() string { return string(id) }

// RoomKey derives the room identity from a conversation identifier.
func RoomKey(conversationID ID) string {
	return "conversation_" + string(conversationID)
}

// IsBlank reports whether a legacy chat payload counts as missing: absent,
// null, false, the empty string or zero.
func IsBlank(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return true
	}
	switch raw[0] {
	case 'n', 'f':
		return bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false"))
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s == ""
	case '{', '[', 't':
		return false
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	return err == nil && f == 0
}
