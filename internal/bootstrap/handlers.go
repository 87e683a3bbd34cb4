package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/relay"
	"github.com/eleven-am/livescribe/internal/tracking"
)

type HandlerParams struct {
	fx.In

	RelayHandler    *relay.Handler
	TrackingHandler *tracking.Handler
	ArchiveHandler  *archive.Handler
	Config          *Config
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	auth := relay.KeyAuth(params.Config.RelayAPIToken)
	api := e.Group("/api/v1")

	params.RelayHandler.RegisterRoutes(e, api, auth)

	protected := api.Group("", auth)
	params.TrackingHandler.RegisterRoutes(protected)
	params.ArchiveHandler.RegisterRoutes(protected)
}

func RegisterSwagger(e *echo.Echo) {
	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

var LoggerModule = fx.Options(
	fx.Provide(ProvideLogger),
)

var HandlersModule = fx.Options(
	fx.Invoke(RegisterRoutes),
)

var SwaggerModule = fx.Options(
	fx.Invoke(RegisterSwagger),
)
