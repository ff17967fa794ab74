package connect

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Event is one decoded record from the stream. Device and Body are kept raw;
// their shape varies by event type and device platform.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Offset    string          `json:"offset"`
	Occurred  string          `json:"occurred,omitempty"`
	Processed string          `json:"processed,omitempty"`
	Device    json.RawMessage `json:"device,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`

	raw []byte
}

// Raw returns the wire bytes the event was decoded from.
func (e *Event) Raw() []byte { return e.raw }

func (e *Event) String() string {
	return fmt.Sprintf("<Event %s %s [%s]>", e.Type, e.ID, e.Offset)
}

func parseEvent(line []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, decodeError(line, err)
	}
	if ev.ID == "" || ev.Type == "" || ev.Offset == "" {
		return nil, decodeError(line, errors.New("missing id, type or offset"))
	}
	ev.raw = append([]byte(nil), line...)
	return &ev, nil
}

// decodeError copies the frame: line aliases the connection's scan buffer,
// which the next read overwrites.
func decodeError(line []byte, err error) *DecodeError {
	return &DecodeError{Line: append([]byte(nil), line...), Err: err}
}
