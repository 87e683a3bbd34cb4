package link

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedEvent = errors.New("malformed recognition event")
	ErrBackendError   = errors.New("backend reported an error")
)

type Event struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

type wireEvent struct {
	Transcript *string `json:"transcript"`
	IsFinal    bool    `json:"isFinal"`
	Error      *string `json:"error"`
}

// DecodeEvent parses one backend message. An {error} body yields ErrBackendError;
// anything else without a transcript is ErrMalformedEvent.
func DecodeEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Error != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrBackendError, *w.Error)
	}
	if w.Transcript == nil {
		return Event{}, fmt.Errorf("%w: missing transcript", ErrMalformedEvent)
	}
	return Event{Transcript: *w.Transcript, IsFinal: w.IsFinal}, nil
}
