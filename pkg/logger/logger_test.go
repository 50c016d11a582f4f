package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core)), logs
}

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "console output", config: &Config{Level: InfoLevel, Format: JSONFormat, Console: true}},
		{name: "file output", config: &Config{File: filepath.Join(dir, "test.log")}},
		{name: "rotate output", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "rotate.log")}}},
		{name: "sampling", config: &Config{Console: true, Sampling: &SamplingConfig{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			require.NotNil(t, l)
			l.Info("hello")
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := NewWithOptions(WithFileOutput(path), WithFormat(JSONFormat))
	require.NoError(t, err)

	l.Info("file output", zap.String("key", "value"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"file output"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestContextFields(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	ctx := WithConnectionID(context.Background(), "conn-1")
	ctx = WithRouteKey(ctx, "$default")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	l.InfoContext(ctx, "routed", zap.Int("count", 2))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "conn-1", fields["connection_id"])
	assert.Equal(t, "$default", fields["route_key"])
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
	assert.EqualValues(t, 2, fields["count"])
}

func TestWithContext(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	child := l.WithContext(WithConnectionID(context.Background(), "abc"))
	child.Warn("child")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abc", logs.All()[0].ContextMap()["connection_id"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestSetLevel(t *testing.T) {
	l, err := NewWithOptions(WithLevel(InfoLevel), WithConsoleOutput())
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, l.Level())

	l.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, l.Level())
	assert.False(t, l.Zap().Core().Enabled(zapcore.WarnLevel))

	// 子 Logger 共享级别
	child := l.With(zap.String("k", "v"))
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{" warn ", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestFormat(t *testing.T) {
	assert.True(t, JSONFormat.IsValid())
	assert.True(t, ConsoleFormat.IsValid())
	assert.False(t, Format("xml").IsValid())
}

// testHook 测试用 Hook
type testHook struct {
	calls int
}

func (h *testHook) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	h.calls++
	return nil
}

func TestHook(t *testing.T) {
	hook := &testHook{}
	l, err := NewWithOptions(WithLevel(InfoLevel), WithConsoleOutput(), WithHook(hook))
	require.NoError(t, err)

	l.Debug("filtered")
	l.Info("recorded")

	assert.Equal(t, 1, hook.calls)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, logs := observed(zapcore.DebugLevel)

	r := gin.New()
	r.Use(Middleware(l, "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusGone) })

	for _, path := range []string{"/healthz", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "/missing", entry.ContextMap()["path"])
	assert.EqualValues(t, http.StatusGone, entry.ContextMap()["status"])
}
