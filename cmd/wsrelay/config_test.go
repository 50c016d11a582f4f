package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsrelay/pkg/config"
	"github.com/tokmz/wsrelay/pkg/gateway"
	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	_, app, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", app.Gateway.Addr)
	assert.Equal(t, "ws", app.Gateway.Stage)
	assert.Equal(t, "action", app.Gateway.RouteSelectionKey)
	assert.Equal(t, registry.DriverMemory, app.Store.Driver)
	assert.Equal(t, DeliveryLocal, app.Delivery.Mode)
	assert.Equal(t, 3*time.Second, app.Delivery.SendTimeout)
	assert.Equal(t, 32, app.Router.FanoutLimit)
	assert.Equal(t, "info", app.Log.Level)
}

func TestLoadSampleConfig(t *testing.T) {
	_, app, err := loadConfig(filepath.Join("..", "..", "configs", "wsrelay.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws", app.Gateway.Stage)
	assert.Equal(t, []string{"127.0.0.1:6379"}, app.Store.Redis.Addrs)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
gateway:
  stage: prod
  heartbeat_interval: 10s
  heartbeat_timeout: 30s
delivery:
  mode: http
  send_timeout: 500ms
router:
  fanout_limit: 8
log:
  level: debug
`)
	t.Setenv("WSRELAY_ROUTER_FANOUT_LIMIT", "16")
	t.Setenv("WSRELAY_GATEWAY_ADDR", ":9090")

	cfg, app, err := loadConfig(path)
	require.NoError(t, err)
	defer cfg.Close()

	assert.Equal(t, path, cfg.ConfigFileUsed())
	assert.Equal(t, "prod", app.Gateway.Stage)
	assert.Equal(t, ":9090", app.Gateway.Addr)
	assert.Equal(t, 10*time.Second, app.Gateway.HeartbeatInterval)
	assert.Equal(t, DeliveryHTTP, app.Delivery.Mode)
	assert.Equal(t, 500*time.Millisecond, app.Delivery.SendTimeout)
	assert.Equal(t, 16, app.Router.FanoutLimit)
	assert.Equal(t, "debug", app.Log.Level)
	// 未配置的字段保留默认值
	assert.Equal(t, 10000, app.Gateway.MaxConnections)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad delivery mode", "delivery:\n  mode: carrier-pigeon\n", config.ErrValidateFailed},
		{"bad log level", "log:\n  level: loud\n", config.ErrValidateFailed},
		{"zero fanout", "router:\n  fanout_limit: 0\n", config.ErrValidateFailed},
		{"bad store", "store:\n  driver: etcd\n", registry.ErrInvalidConfig},
		{"bad heartbeat", "gateway:\n  heartbeat_timeout: 1s\n", gateway.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, config.ErrConfigNotFound)
}

func loggerConfig(c *LogConfig) *logger.Config {
	out := &logger.Config{}
	for _, opt := range c.Options() {
		opt(out)
	}
	return out
}

func TestLogOptions(t *testing.T) {
	plain := loggerConfig(&LogConfig{Level: "warn", Format: "console", Console: true, Caller: true})
	assert.Equal(t, logger.WarnLevel, plain.Level)
	assert.Equal(t, logger.ConsoleFormat, plain.Format)
	assert.True(t, plain.Console)
	assert.False(t, plain.DisableCaller)
	assert.True(t, plain.DisableStacktrace)
	assert.Nil(t, plain.Rotate)
	assert.Nil(t, plain.Sampling)

	file := loggerConfig(&LogConfig{Level: "info", Format: "json", File: "/tmp/a.log"})
	assert.Equal(t, "/tmp/a.log", file.File)
	assert.False(t, file.Console)
	assert.Nil(t, file.Rotate)

	rotated := loggerConfig(&LogConfig{Level: "info", Format: "json", File: "/tmp/a.log", Rotate: true, MaxSize: 50})
	require.NotNil(t, rotated.Rotate)
	assert.Equal(t, "/tmp/a.log", rotated.Rotate.Filename)
	assert.Equal(t, 50, rotated.Rotate.MaxSize)
	assert.Empty(t, rotated.File)

	sampled := loggerConfig(&LogConfig{Level: "info", Format: "json", Sampling: true, SamplingInitial: 10, SamplingThereafter: 50})
	require.NotNil(t, sampled.Sampling)
	assert.Equal(t, 10, sampled.Sampling.Initial)
	assert.Equal(t, 50, sampled.Sampling.Thereafter)
}

func TestDefaultLogOptionsBuildLogger(t *testing.T) {
	log, err := logger.NewWithOptions(defaultAppConfig().Log.Options()...)
	require.NoError(t, err)
	assert.Equal(t, logger.InfoLevel, log.Level())
}
