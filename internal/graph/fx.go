package graph

import "go.uber.org/fx"

var Module = fx.Module("graph.client",
	fx.Provide(NewClient),
)
