package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"loan-lifecycle/internal/common/logger"
)

func TestZeroValueIsNoOp(t *testing.T) {
	var o Observability
	ctx := context.Background()

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "success")
		o.RecordTransition(ctx, "pending", "approved", "rule-engine")
		o.RecordReminderRun(ctx, time.Second, 1, 0)
		_, span := o.StartSpan(ctx, "noop")
		span.End()
		o.Shutdown()
	})
}

func TestNew_WithoutJaeger(t *testing.T) {
	o := New(Config{ServiceName: "loan-lifecycle-test"}, logger.NewNoOpLogger())
	defer o.Shutdown()

	assert.Nil(t, o.tracerProvider)
	ctx, span := o.StartSpan(context.Background(), "submit")
	defer span.End()
	assert.NotNil(t, ctx)
	o.RecordRiskScore(ctx, 42, "low")
}
