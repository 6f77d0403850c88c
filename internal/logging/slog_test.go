package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONSlog(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func slogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func withRequestID(id string) context.Context {
	return context.WithValue(context.Background(), middleware.RequestIDKey, id)
}

func TestSlogLogger_LevelsAndAttributes(t *testing.T) {
	log, buf := newJSONSlog(t)
	ctx := context.Background()

	log.Debug(ctx, "token rejected", "reason", "expired")
	log.Info(ctx, "user registered", "user_id", 1)
	log.Warn(ctx, "refresh token already rotated", "user_id", 2)
	log.Error(ctx, "rotation aborted", "code", "AUTH_ROTATION_FAILED")

	lines := slogLines(t, buf)
	require.Len(t, lines, 4)
	for i, want := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		assert.Equal(t, want, lines[i]["level"])
		assert.NotContains(t, lines[i], RequestIDKey, "no request in context")
	}
	assert.Equal(t, "expired", lines[0]["reason"])
	assert.EqualValues(t, 1, lines[1]["user_id"])
	assert.Equal(t, "AUTH_ROTATION_FAILED", lines[3]["code"])
}

func TestSlogLogger_AddsRequestID(t *testing.T) {
	log, buf := newJSONSlog(t)

	log.With("component", "auth").Info(withRequestID("req-7"), "user logged in", "user_id", 3)

	lines := slogLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-7", lines[0][RequestIDKey])
	assert.Equal(t, "auth", lines[0]["component"])
	assert.EqualValues(t, 3, lines[0]["user_id"])
}

func TestSlogLogger_RequestIDSurvivesGroups(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil)).WithGroup("auth")
	log := NewSlogLogger(base)

	log.Info(withRequestID("req-8"), "password reset")

	assert.Contains(t, buf.String(), "auth.request_id=req-8")
}

func TestNewSlogLogger_DoesNotWrapTwice(t *testing.T) {
	log, buf := newJSONSlog(t)
	again := NewSlogLogger(log.l)

	again.Info(withRequestID("req-9"), "once")

	assert.Equal(t, 1, strings.Count(buf.String(), "req-9"))
}
