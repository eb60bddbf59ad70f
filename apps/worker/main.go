package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/observability"
	"github.com/smallbiznis/ambassador/internal/scheduler"
	"github.com/smallbiznis/ambassador/internal/server"
	"github.com/smallbiznis/ambassador/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Services,

		// No HTTP server.
		scheduler.Module,
	)
	app.Run()
}

// Worker IDs are offset from the API so snowflake IDs never collide.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
