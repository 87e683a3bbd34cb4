package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/console"
	"github.com/eleven-am/livescribe/internal/link"
	"github.com/eleven-am/livescribe/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "livescribe",
		Short: "Live transcription client",
		Long: `livescribe captures microphone or system audio with ffmpeg, streams it to a
livescribe relay and prints the running transcript. Type commands on stdin:
start, pause, resume, stop, status, export text|json, quit.`,
		SilenceUsage: true,
		RunE:         run,
	}
	registerFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	opts, err := loadOptions(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := newDialer(ctx, opts, logger)
	if err != nil {
		return err
	}

	ui := console.New(cmd.OutOrStdout(), console.Options{
		OutPath:   opts.OutPath,
		OutFormat: opts.OutFormat,
	}, logger)

	ctrl := session.New(capture.NewFFmpegCapturer(logger), dialer, session.Options{
		Source:  opts.Source,
		Capture: opts.Capture,
		Backoff: opts.Backoff,
	}, ui.Callbacks(), logger)
	defer ctrl.Close()
	ui.Attach(ctrl)

	logger.Info("livescribe ready",
		"relay", opts.RelayURL,
		"transport", opts.Transport,
		"encoding", opts.Encoding,
		"source", opts.Source,
		"chunk", opts.ChunkLength,
	)
	return ui.Run(ctx, cmd.InOrStdin())
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	return slog.New(handler), nil
}

func newDialer(ctx context.Context, opts options, logger *slog.Logger) (link.Dialer, error) {
	var ts oauth2.TokenSource
	if opts.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
	}

	switch opts.Transport {
	case transportBatch:
		client := &http.Client{Timeout: 2 * time.Minute}
		if ts != nil {
			client = oauth2.NewClient(ctx, ts)
			client.Timeout = 2 * time.Minute
		}
		return &link.BatchDialer{
			BaseURL:  opts.RelayURL,
			Client:   client,
			Format:   string(opts.Encoding),
			Language: opts.Language,
			Logger:   logger,
		}, nil
	default:
		url, err := link.StreamURL(opts.RelayURL, string(opts.Encoding), opts.Language)
		if err != nil {
			return nil, err
		}
		return &link.WSDialer{
			URL:         url,
			TokenSource: ts,
			Logger:      logger,
		}, nil
	}
}
