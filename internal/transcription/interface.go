package transcription

import "context"

type Transcriber interface {
	SendAudio(data []byte) error
	WaitReady(ctx context.Context) bool
	ReconnectSync() error
	Finish(ctx context.Context) error
	Close() error
}

// Factory opens one sidecar stream per relay connection.
type Factory func(opts SessionOptions, cb Callbacks) (Transcriber, error)

func NewFactory(cfg Config) Factory {
	return func(opts SessionOptions, cb Callbacks) (Transcriber, error) {
		return New(cfg, opts, cb)
	}
}
