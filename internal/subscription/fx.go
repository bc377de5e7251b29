package subscription

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizdash/internal/clock"
	"github.com/smallbiznis/bizdash/internal/config"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"github.com/smallbiznis/bizdash/internal/subscription/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("subscription.store",
	fx.Provide(NewStore),
)

type StoreParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

// NewStore returns the plan and usage store selected by STORE_DRIVER.
func NewStore(p StoreParams) subscriptiondomain.Store {
	if p.Config.StoreDriver == config.StoreDriverRedis && p.Redis != nil {
		p.Log.Info("usage store selected", zap.String("driver", config.StoreDriverRedis))
		return repository.ProvideRedis(p.Redis, p.Clock)
	}
	p.Log.Info("usage store selected", zap.String("driver", config.StoreDriverGorm))
	return repository.Provide(p.DB, p.Clock)
}
