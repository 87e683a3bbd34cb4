package bootstrap

import (
	"context"
	"crypto/tls"
	"log/slog"

	"go.uber.org/fx"
	"google.golang.org/grpc/credentials"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/relay"
	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/eleven-am/livescribe/internal/tracking"
	"github.com/eleven-am/livescribe/internal/transcription"
)

func ProvideSTTConfig(cfg *Config) transcription.Config {
	stt := transcription.Config{
		Address: cfg.STTAddress,
		Token:   cfg.SidecarToken,
		Backoff: shared.BackoffConfig{MaxAttempts: cfg.STTMaxAttempts},
	}
	if cfg.SidecarTLS {
		stt.TLSCreds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return stt
}

func ProvideTranscriberFactory(cfg transcription.Config) transcription.Factory {
	return transcription.NewFactory(cfg)
}

func ProvideBatchFunc(cfg transcription.Config) relay.BatchFunc {
	return func(ctx context.Context, req transcription.BatchRequest) (string, error) {
		return transcription.BatchTranscribe(ctx, cfg, req)
	}
}

func ProvideRelayHandler(
	factory transcription.Factory,
	batch relay.BatchFunc,
	tracker *tracking.Store,
	segments *archive.Store,
	cfg *Config,
	logger *slog.Logger,
) *relay.Handler {
	return relay.NewHandler(factory, batch, tracker, segments, relay.Options{
		Language: cfg.STTLanguage,
		Model:    cfg.STTModel,
	}, logger)
}

func ProvideTrackingHandler(store *tracking.Store, logger *slog.Logger) *tracking.Handler {
	return tracking.NewHandler(store, logger)
}

func ProvideArchiveHandler(store *archive.Store, logger *slog.Logger) *archive.Handler {
	return archive.NewHandler(store, logger.With("handler", "archive"))
}

var RelayModule = fx.Options(
	fx.Provide(
		ProvideSTTConfig,
		ProvideTranscriberFactory,
		ProvideBatchFunc,
		ProvideRelayHandler,
		ProvideTrackingHandler,
		ProvideArchiveHandler,
	),
)
