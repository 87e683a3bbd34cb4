package capture

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCaptureUnavailable = errors.New("audio capture unavailable")
	ErrPermissionDenied   = errors.New("audio capture permission denied")
)

const (
	RealtimeCadence = 100 * time.Millisecond
	ChunkedCadence  = 30 * time.Second

	frameDuration = 20 * time.Millisecond
)

type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceTab        Source = "tab"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceMicrophone, SourceTab:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown capture source %q", s)
}

type Encoding string

const (
	EncodingOpus  Encoding = "opus"
	EncodingWAV   Encoding = "wav"
	EncodingPCM16 Encoding = "pcm16"
)

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingOpus, EncodingWAV, EncodingPCM16:
		return Encoding(s), nil
	}
	return "", fmt.Errorf("unknown audio encoding %q", s)
}

type Config struct {
	Command          string
	InputFormat      string
	MicrophoneDevice string
	TabDevice        string
	SampleRate       int
	Channels         int
	Cadence          time.Duration
	Encoding         Encoding
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.MicrophoneDevice == "" {
		c.MicrophoneDevice = "default"
	}
	if c.Encoding == "" {
		c.Encoding = EncodingPCM16
	}
	if c.Cadence <= 0 {
		c.Cadence = RealtimeCadence
	}
	if c.Encoding == EncodingOpus {
		c.SampleRate = 48000
		c.Channels = 1
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// frameBytes is the size of one 20 ms PCM16 frame.
func (c Config) frameBytes() int {
	return c.SampleRate * int(frameDuration/time.Millisecond) / 1000 * c.Channels * 2
}

// framesPerChunk is how many frames make up one cadence interval, at least one.
func (c Config) framesPerChunk() int {
	n := int(c.Cadence / frameDuration)
	if n < 1 {
		n = 1
	}
	return n
}

// Producer emits encoded audio chunks until stopped.
type Producer interface {
	Chunks() <-chan []byte
	Pause()
	Resume()
	Stop() error
}
