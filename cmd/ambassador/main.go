package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/migration"
	"github.com/smallbiznis/ambassador/internal/observability"
	"github.com/smallbiznis/ambassador/internal/scheduler"
	"github.com/smallbiznis/ambassador/internal/server"
	"github.com/smallbiznis/ambassador/pkg/db"
	"go.uber.org/fx"
)

// Single-process deployment: HTTP API and outbox dispatcher together.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Services,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
