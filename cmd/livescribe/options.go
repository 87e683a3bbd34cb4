package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/console"
	"github.com/eleven-am/livescribe/internal/shared"
)

const envPrefix = "LIVESCRIBE"

const (
	modeRealtime = "realtime"
	modeChunked  = "chunked"

	transportStream = "stream"
	transportBatch  = "batch"
)

type options struct {
	RelayURL    string
	Token       string
	Language    string
	Source      capture.Source
	Transport   string
	Capture     capture.Config
	Backoff     shared.BackoffConfig
	OutPath     string
	OutFormat   console.ExportFormat
	LogLevel    string
	SampleRate  int
	Encoding    capture.Encoding
	ChunkLength time.Duration
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("relay-url", "http://localhost:8080", "Relay base URL")
	fs.String("token", "", "Relay API token")
	fs.String("language", "", "Language code of the audio")
	fs.String("source", string(capture.SourceMicrophone), "Audio source: microphone or tab")
	fs.String("mode", modeRealtime, "Chunk cadence: realtime (100ms) or chunked (30s)")
	fs.String("transport", transportStream, "Relay transport: stream (websocket) or batch (multipart)")
	fs.String("encoding", "", "Chunk encoding: opus, pcm16 or wav (default opus for stream, wav for batch)")
	fs.String("ffmpeg", "ffmpeg", "ffmpeg command")
	fs.String("input-format", "pulse", "ffmpeg input format (pulse, alsa, avfoundation, dshow)")
	fs.String("mic-device", "default", "Microphone input device")
	fs.String("tab-device", "", "Monitor device used for tab/system audio capture")
	fs.Int("sample-rate", 16000, "Capture sample rate for pcm16 and wav chunks")
	fs.Int("max-retries", shared.DefaultBackoffMaxAttempts, "Reconnect attempts before giving up")
	fs.Duration("retry-delay", shared.DefaultBackoffInitial, "Base reconnect delay, doubled per attempt")
	fs.String("out", "", "Write the transcript here when a session stops")
	fs.String("out-format", string(console.ExportText), "Transcript file format: text or json")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func loadOptions(v *viper.Viper) (options, error) {
	var o options

	o.RelayURL = v.GetString("relay-url")
	if o.RelayURL == "" {
		return o, fmt.Errorf("relay url is required")
	}
	o.Token = v.GetString("token")
	o.Language = v.GetString("language")
	o.LogLevel = v.GetString("log-level")
	o.OutPath = v.GetString("out")

	source, err := capture.ParseSource(v.GetString("source"))
	if err != nil {
		return o, err
	}
	o.Source = source

	switch o.Transport = v.GetString("transport"); o.Transport {
	case transportStream, transportBatch:
	default:
		return o, fmt.Errorf("unknown transport %q", o.Transport)
	}

	switch mode := v.GetString("mode"); mode {
	case modeRealtime:
		o.ChunkLength = capture.RealtimeCadence
	case modeChunked:
		o.ChunkLength = capture.ChunkedCadence
	default:
		return o, fmt.Errorf("unknown mode %q", mode)
	}

	if enc := v.GetString("encoding"); enc != "" {
		if o.Encoding, err = capture.ParseEncoding(enc); err != nil {
			return o, err
		}
	} else if o.Transport == transportBatch {
		o.Encoding = capture.EncodingWAV
	} else {
		o.Encoding = capture.EncodingOpus
	}

	if o.OutFormat, err = console.ParseExportFormat(v.GetString("out-format")); err != nil {
		return o, err
	}

	o.SampleRate = v.GetInt("sample-rate")
	o.Capture = capture.Config{
		Command:          v.GetString("ffmpeg"),
		InputFormat:      v.GetString("input-format"),
		MicrophoneDevice: v.GetString("mic-device"),
		TabDevice:        v.GetString("tab-device"),
		SampleRate:       o.SampleRate,
		Channels:         1,
		Cadence:          o.ChunkLength,
		Encoding:         o.Encoding,
	}
	o.Backoff = shared.BackoffConfig{
		Initial:     v.GetDuration("retry-delay"),
		MaxAttempts: v.GetInt("max-retries"),
	}.Normalize()
	return o, nil
}
