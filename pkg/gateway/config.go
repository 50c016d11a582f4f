package gateway

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Config 网关配置
type Config struct {
	// HTTP 服务
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin 模式：debug/release/test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`

	// Stage 路径前缀，连接地址为 /{stage}
	Stage string `mapstructure:"stage"`
	// RouteSelectionKey 入站帧中用于选择自定义路由的字段
	RouteSelectionKey string `mapstructure:"route_selection_key"`

	// 连接
	MaxConnections    int           `mapstructure:"max_connections"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`

	// Origin 检查：AllowAllOrigins 优先，其次白名单，否则同源
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":8080",
		Mode:              gin.ReleaseMode,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   10 * time.Second,
		Stage:             "ws",
		RouteSelectionKey: "action",
		MaxConnections:    10000,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    128 * 1024,
		SendQueueSize:     256,
		WriteWait:         10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Stage == "" {
		return fmt.Errorf("%w: stage is required", ErrInvalidConfig)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: max_connections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max_message_size must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: send_queue_size must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat_interval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%w: heartbeat_timeout (%v) must be greater than heartbeat_interval (%v)",
			ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	return nil
}
