package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Level:     level,
		Component: ComponentApp,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo).WithComponent(ComponentScheduler)

	logger.Info("tick finished", FieldRecurringID, "r-1")
	logger.Debug("filtered out")
	logger.Warn("explicit", FieldComponent, ComponentMirror)

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, ComponentScheduler, got[0][FieldComponent])
	assert.Equal(t, "r-1", got[0][FieldRecurringID])
	assert.Equal(t, ComponentMirror, got[1][FieldComponent])
	assert.Equal(t, ComponentScheduler, logger.Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf, slog.LevelInfo))
	ctx := context.Background()

	sl.LogTransactionCreated(ctx, "user-1", "tx-1", "expense", "12.50")
	r := httptest.NewRequest(http.MethodGet, "/api/transactions?page=2", nil)
	sl.LogHTTPEnd(ctx, r, http.StatusNotFound, 3, "10.0.0.1")
	sl.LogError(ctx, "append failed", errors.New("quota"), ComponentMirror, OpAppend, nil)

	got := lines(t, &buf)
	require.Len(t, got, 3)

	assert.Equal(t, "tx-1", got[0][FieldTransactionID])
	assert.Equal(t, "12.50", got[0][FieldAmount])
	assert.Equal(t, "user-1", got[0][FieldUserID])
	assert.Equal(t, ComponentLedger, got[0][FieldComponent])

	assert.Equal(t, "WARN", got[1]["level"])
	assert.Equal(t, "page=2", got[1][FieldQuery])
	assert.Equal(t, false, got[1][FieldSuccess])

	assert.Equal(t, "ERROR", got[2]["level"])
	assert.Equal(t, "quota", got[2][FieldError])
	assert.Equal(t, OpAppend, got[2][FieldOperation])
}

func TestMiddlewareCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	var seen *Logger
	h := Middleware(logger)(
		RequestIDMiddleware(func(*http.Request) string { return "req-9" })(
			ComponentMiddleware(ComponentHTTP)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seen = FromContext(r.Context())
					seen.Info("handled")
				}))))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	assert.Equal(t, ComponentHTTP, seen.Component())
	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "req-9", got[0][FieldRequestID])

	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}
