package bootstrap

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/eleven-am/livescribe/internal/health"
	"github.com/eleven-am/livescribe/internal/relay"
	"github.com/eleven-am/livescribe/internal/transcription"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	sttConfig transcription.Config,
	relayHandler *relay.Handler,
) *health.Handler {
	check := func(ctx context.Context) error {
		return transcription.Ping(ctx, sttConfig)
	}
	return health.NewHandler(db, redis, check, relayHandler, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(h.Middleware())
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
