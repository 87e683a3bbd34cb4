package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/tracking"
)

func ProvideTrackingStore(redisClient *redis.Client) *tracking.Store {
	return tracking.NewStore(redisClient)
}

func ProvideArchiveStore(db *gorm.DB) *archive.Store {
	return archive.NewStore(db)
}

func RunMigrations(archiveStore *archive.Store) error {
	return archiveStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideTrackingStore,
		ProvideArchiveStore,
	),
	fx.Invoke(RunMigrations),
)
