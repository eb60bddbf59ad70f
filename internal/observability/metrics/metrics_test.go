package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("endpoint", "/send-affiliate-invitation"),
		attribute.String("recipient_email", "a@x.com"),
		attribute.String("result", "accepted"),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("recipient_email"), attr.Key)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvitationSent(context.Background(), "percentage")
	m.RecordInvitationAccepted(context.Background(), "accepted")
	m.RecordAffiliateCreated(context.Background())

	var s *SchedulerMetrics
	s.IncOutboxTask("invitation_email", OutboxResultDone)
	s.IncJobRun("outbox_dispatch")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "ambassador"}, noop.NewMeterProvider())
	assert.NoError(t, err)
	m.RecordInvitationSent(context.Background(), "fixed")
}

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestOutboxCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "ambassador", Environment: "test"})

	m.IncOutboxTask("invitation_email", OutboxResultDone)
	m.IncOutboxTask("invitation_email", OutboxResultDone)
	m.IncOutboxTask("graph_metadata_refresh", OutboxResultRetry)
	m.AddBatchProcessed("outbox_dispatch", "outbox_tasks", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outboxTasks.WithLabelValues("invitation_email", OutboxResultDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxTasks.WithLabelValues("graph_metadata_refresh", OutboxResultRetry)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues("outbox_dispatch", "outbox_tasks")))
}
