package link

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrLinkOpen = errors.New("could not open streaming link")

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Callbacks are fixed when the link is opened. OnEvent calls arrive in backend order
// from a single goroutine. OnClose fires exactly once per opened link.
type Callbacks struct {
	OnEvent func(Event)
	OnClose func(wasClean bool)
}

// Link carries audio chunks to the relay. Send on a link that is not open drops the chunk.
type Link interface {
	Send(chunk []byte)
	State() State
	Close() error
}

// Dialer opens a link. A failed Open returns an error wrapping ErrLinkOpen and never calls OnClose.
type Dialer interface {
	Open(ctx context.Context, cb Callbacks) (Link, error)
}

const TranscribePath = "/transcribe"

// StreamURL turns the relay base URL into the websocket endpoint URL.
func StreamURL(base, encoding, language string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	u.Path += TranscribePath

	q := u.Query()
	if encoding != "" {
		q.Set("encoding", encoding)
	}
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func httpBase(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "http"
	case "https", "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
