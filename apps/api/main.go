package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ambassador/internal/clock"
	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/migration"
	"github.com/smallbiznis/ambassador/internal/observability"
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
		migration.Module,

		// Outbox handlers are registered but dispatched by apps/worker.
		server.Services,
		server.Module,
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
