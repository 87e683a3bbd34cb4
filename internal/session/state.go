package session

import (
	"errors"
	"time"

	"github.com/eleven-am/livescribe/internal/transcript"
)

var (
	ErrAlreadyActive      = errors.New("session already active")
	ErrInvalidState       = errors.New("operation not valid in current state")
	ErrStopped            = errors.New("session stopped")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrCaptureEnded       = errors.New("audio capture ended")
	ErrClosed             = errors.New("controller closed")
)

const (
	MsgPaused    = "Paused transcribing..."
	MsgResumed   = "Resumed transcribing..."
	MsgStopped   = "Stopped transcribing."
	MsgReconnect = "Reconnected."
	MsgExhausted = "Connection lost. Reconnect attempts exhausted; press Start to begin a new session."
	MsgCapture   = "Audio capture ended unexpectedly."
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateCapturing
	StatePaused
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "idle"
	}
}

// Status is a copy of the controller's session state at one point in time.
type Status struct {
	State        State     `json:"state"`
	SessionID    string    `json:"session_id,omitempty"`
	IsCapturing  bool      `json:"is_capturing"`
	IsPaused     bool      `json:"is_paused"`
	Reconnecting bool      `json:"reconnecting"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	RetryCount   int       `json:"retry_count"`
}

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a user-facing status message. Err is set for terminal failures.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// Snapshot is the full observable state: status plus the ledger contents.
type Snapshot struct {
	Status     Status
	Transcript string
	Events     []transcript.Event
	Interim    *transcript.Event
}

// Callbacks run on the controller goroutine. They must not block or call back into the Controller.
type Callbacks struct {
	OnState      func(Status)
	OnTranscript func(string)
	OnNotice     func(Notice)
}
