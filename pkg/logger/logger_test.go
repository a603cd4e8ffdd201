package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "crudschema/internal/core/context"
)

func TestFromContext_AttachesTraceAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewFromZap(zap.New(core))

	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "42"})

	Warn(ctx, "blank field names dropped", "model", "users", "dropped", 2)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "42", fields["user_id"])
		assert.Equal(t, "users", fields["model"])
		assert.Equal(t, int64(2), fields["dropped"])
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
	}
}

func TestFromContext_BelowLevelIsDiscarded(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := WithLogger(context.Background(), NewFromZap(zap.New(core)))

	Info(ctx, "not recorded")
	Debug(ctx, "not recorded")

	assert.Equal(t, 0, logs.Len())
}
