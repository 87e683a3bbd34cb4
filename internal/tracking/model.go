package tracking

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Record describes one relay connection from the streaming endpoint.
type Record struct {
	ID           string     `json:"id"`
	Encoding     string     `json:"encoding"`
	Language     string     `json:"language,omitempty"`
	RemoteAddr   string     `json:"remote_addr,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Finals       int64      `json:"finals"`
	Interims     int64      `json:"interims"`
	AudioBytes   int64      `json:"audio_bytes"`
}

func recordKey(id string) string {
	return "relay:session:" + id
}

const activeSetKey = "relay:sessions:active"

// Activity is the counter delta reported by a relay connection.
type Activity struct {
	Finals     int64
	Interims   int64
	AudioBytes int64
}

type Metrics struct {
	Date          string `json:"date"`
	Hour          int    `json:"hour"`
	Sessions      int64  `json:"sessions"`
	Finals        int64  `json:"finals"`
	Interims      int64  `json:"interims"`
	BatchRequests int64  `json:"batch_requests"`
	Errors        int64  `json:"errors"`
	AudioBytes    int64  `json:"audio_bytes"`
}

const (
	FieldSessions      = "sessions"
	FieldFinals        = "finals"
	FieldInterims      = "interims"
	FieldBatchRequests = "batch_requests"
	FieldErrors        = "errors"
	FieldAudioBytes    = "audio_bytes"
)

func metricsKey(date string, hour int) string {
	return "relay:metrics:" + date + ":" + strconv.Itoa(hour)
}
