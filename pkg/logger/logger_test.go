package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_UsesAttachedLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core)).WithComponent("softdelete")

	ctx := WithLogger(context.Background(), l)
	Debug(ctx, "hidden", "entity", "post")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "hidden", entries[0].Message)
		fields := entries[0].ContextMap()
		assert.Equal(t, "softdelete", fields["component"])
		assert.Equal(t, "post", fields["entity"])
		assert.NotContains(t, fields, "trace_id")
	}
}

func TestNew_FallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "verbose", OutputPaths: []string{"stderr"}})
	assert.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}
