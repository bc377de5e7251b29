package companysettings

import (
	"github.com/smallbiznis/bizdash/internal/companysettings/repository"
	"github.com/smallbiznis/bizdash/internal/companysettings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("companysettings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
