package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsrelay/pkg/delivery"
)

func testClient(id string, queue int) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{id: id, send: make(chan []byte, queue), ctx: ctx, cancel: cancel}
}

func TestPoolLimit(t *testing.T) {
	p := NewPool(1)

	require.NoError(t, p.add(testClient("a", 1)))
	assert.ErrorIs(t, p.add(testClient("a", 1)), ErrConnectionExists)
	assert.ErrorIs(t, p.add(testClient("b", 1)), ErrTooManyConnections)
	assert.Equal(t, 1, p.Count())
	assert.True(t, p.Full())
	assert.False(t, p.Has("b"))

	p.remove("a")
	p.remove("a")
	assert.Zero(t, p.Count())
	assert.False(t, p.Full())
}

func TestPoolPostToConnection(t *testing.T) {
	p := NewPool(0)
	ctx := context.Background()

	assert.ErrorIs(t, p.PostToConnection(ctx, "missing", []byte("x")), delivery.ErrGone)

	c := testClient("a", 1)
	require.NoError(t, p.add(c))
	require.NoError(t, p.PostToConnection(ctx, "a", []byte("first")))
	assert.Equal(t, []byte("first"), <-c.send)

	// 队列已满，等待超时
	require.NoError(t, p.PostToConnection(ctx, "a", []byte("fill")))
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := p.PostToConnection(timeout, "a", []byte("overflow"))
	assert.ErrorIs(t, err, delivery.ErrPush)
	assert.NotErrorIs(t, err, delivery.ErrGone)

	c.cancel()
	assert.ErrorIs(t, p.PostToConnection(ctx, "a", []byte("late")), delivery.ErrGone)
}

func TestOriginChecks(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://relay.example.com/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, sameOrigin(req("https://relay.example.com")))
	assert.False(t, sameOrigin(req("https://evil.example.com")))
	assert.False(t, sameOrigin(req("")))

	allow := originWhitelist([]string{"https://app.example.com"})
	assert.True(t, allow(req("https://app.example.com")))
	assert.False(t, allow(req("https://relay.example.com")))

	cfg := DefaultConfig()
	cfg.AllowAllOrigins = true
	assert.True(t, newUpgrader(cfg).CheckOrigin(req("")))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no stage", func(c *Config) { c.Stage = "" }},
		{"no connections", func(c *Config) { c.MaxConnections = 0 }},
		{"no buffer", func(c *Config) { c.ReadBufferSize = 0 }},
		{"no message size", func(c *Config) { c.MaxMessageSize = 0 }},
		{"no queue", func(c *Config) { c.SendQueueSize = 0 }},
		{"heartbeat timeout too short", func(c *Config) { c.HeartbeatTimeout = c.HeartbeatInterval }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
