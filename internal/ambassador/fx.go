package ambassador

import (
	"github.com/smallbiznis/ambassador/internal/ambassador/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ambassador.service",
	fx.Provide(service.New),
	fx.Provide(service.NewHandlers),
)
