package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "otlpgrpc", mutate: func(c *Config) { c.Exporter = ExporterOTLPGRPC }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "rate too high", mutate: func(c *Config) { c.SamplingRate = 1.5 }, wantErr: true},
		{name: "unknown exporter", mutate: func(c *Config) { c.Exporter = "zipkin" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerProviderNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	tp, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerFromEnv(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFromEnv("always_on", 1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFromEnv("always_off", 1).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), samplerFromEnv("traceidratio", 0.5).Description())

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "2")
	assert.Equal(t, 1.0, envSamplingRatio())
}

func TestStartSpanAndRecordError(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartSpan(context.Background(), "dispatch")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetAttributes(span, map[string]any{"route_key": "$default", "count": 3})
	SetStatusCode(span, 500)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatch", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := installRecorder(t)

	r := gin.New()
	r.Use(Middleware(WithFilter(func(c *gin.Context) bool {
		return c.Request.URL.Path != "/healthz"
	})))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/:stage/@connections/:id", func(c *gin.Context) {
		c.Status(http.StatusGone)
	})
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodGet, "/prod/@connections/abc", nil),
		httptest.NewRequest(http.MethodPost, "/fail", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /:stage/@connections/:id", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "POST /fail", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNewExporter(t *testing.T) {
	ctx := context.Background()
	for _, exporter := range []string{ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop} {
		cfg := DefaultConfig()
		cfg.Exporter = exporter
		cfg.Endpoint = "localhost:4317"
		cfg.Insecure = true

		exp, err := newExporter(ctx, cfg)
		require.NoError(t, err, exporter)
		require.NotNil(t, exp, exporter)
		_ = exp.Shutdown(ctx)
	}

	cfg := DefaultConfig()
	cfg.Exporter = "zipkin"
	_, err := newExporter(ctx, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
