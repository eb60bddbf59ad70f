package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/ambassador/internal/observability/context"
	"github.com/smallbiznis/ambassador/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsIdentifiers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithInvitationRedactsToken(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	WithInvitation(zap.New(core), "01HZX4K9ABCDEFGHJKMNPQRS", " graph_123 ").Info("sent")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "01HZX4K9AB...", fields["invitation_token"])
	assert.Equal(t, "graph_123", fields["deal_name"])
	assert.Equal(t, "short", RedactToken("short"))
}

func TestZapConfigRejectsUnknownLevel(t *testing.T) {
	_, err := zapConfig(Config{Level: "loud"})
	assert.Error(t, err)

	cfg, err := zapConfig(Config{Format: "console", Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
}
