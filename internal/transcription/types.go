package transcription

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/eleven-am/livescribe/internal/shared"
)

type TranscriptEvent struct {
	Text      string
	IsPartial bool
}

type Callbacks struct {
	OnReady      func()
	OnTranscript func(event TranscriptEvent)
	OnError      func(error)
}

type Config struct {
	Address        string
	Token          string
	TLSCreds       credentials.TransportCredentials
	Backoff        shared.BackoffConfig
	MaxMessageSize int
	DialOptions    []grpc.DialOption
}

// SessionOptions is the config message sent first on every sidecar stream.
type SessionOptions struct {
	Encoding   string
	SampleRate int
	Language   string
	Model      string
	Partials   bool
}
