package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestContext_GeneratesUUID(t *testing.T) {
	rc := NewRequestContext(nil, "route", "u-1")
	_, err := uuid.Parse(rc.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "route", rc.Operation)
	assert.NotNil(t, rc.Logger)
}

func TestRequestContext_LogsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rc := NewRequestContextWithID(logger, "req-42", "extract", "alice")
	rc.Info("entities extracted", slog.Int("fields", 3))

	out := buf.String()
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, "operation=extract")
	assert.Contains(t, out, "user_id=alice")
	assert.Contains(t, out, "fields=3")
}

func TestLogger_FromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rc := NewRequestContextWithID(logger, "req-7", "route", "")

	ctx := WithRequestContext(context.Background(), rc)
	Logger(ctx).Info("hello")
	assert.Contains(t, buf.String(), "request_id=req-7")
	assert.NotContains(t, buf.String(), "user_id")

	got, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, slog.Default(), Logger(context.Background()))
}
