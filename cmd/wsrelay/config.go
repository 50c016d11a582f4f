package main

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tokmz/wsrelay/pkg/config"
	"github.com/tokmz/wsrelay/pkg/delivery"
	"github.com/tokmz/wsrelay/pkg/gateway"
	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/orm"
	"github.com/tokmz/wsrelay/pkg/registry"
	"github.com/tokmz/wsrelay/pkg/router"
	"github.com/tokmz/wsrelay/pkg/tracing"
)

const envPrefix = "WSRELAY"

// 推送方式
const (
	// DeliveryLocal 直接写入本进程连接池
	DeliveryLocal = "local"
	// DeliveryHTTP 调用 {scheme}://{domain}/{stage}/@connections/{id}
	DeliveryHTTP = "http"
)

// AppConfig 进程配置
type AppConfig struct {
	Gateway  gateway.Config  `mapstructure:"gateway"`
	Store    registry.Config `mapstructure:"store"`
	Delivery DeliveryConfig  `mapstructure:"delivery"`
	Router   RouterConfig    `mapstructure:"router"`
	Log      LogConfig       `mapstructure:"log"`
	Tracing  tracing.Config  `mapstructure:"tracing"`
}

// DeliveryConfig 推送配置
type DeliveryConfig struct {
	Mode        string            `mapstructure:"mode" validate:"oneof=local http"`
	Scheme      string            `mapstructure:"scheme" validate:"omitempty,oneof=http https"`
	SendTimeout time.Duration     `mapstructure:"send_timeout" validate:"gt=0"`
	Headers     map[string]string `mapstructure:"headers"`
}

// RouterConfig 路由配置
type RouterConfig struct {
	FanoutLimit int `mapstructure:"fanout_limit" validate:"gte=1,lte=1024"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	Rotate     bool   `mapstructure:"rotate"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`

	// Sampling 为 true 时每秒同类日志前 SamplingInitial 条全记，之后每 SamplingThereafter 条记 1 条
	Sampling           bool `mapstructure:"sampling"`
	SamplingInitial    int  `mapstructure:"sampling_initial" validate:"gte=0"`
	SamplingThereafter int  `mapstructure:"sampling_thereafter" validate:"gte=0"`
}

// defaultAppConfig 各组件默认值
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Gateway: *gateway.DefaultConfig(),
		Store:   *registry.DefaultConfig(),
		Delivery: DeliveryConfig{
			Mode:        DeliveryLocal,
			Scheme:      "https",
			SendTimeout: delivery.DefaultSendTimeout,
		},
		Router:  RouterConfig{FanoutLimit: router.DefaultFanoutLimit},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Console:    true,
			Caller:     true,
			Stacktrace: true,
		},
		Tracing: *tracing.DefaultConfig(),
	}
}

// envDefaults 登记可由环境变量覆盖的键
var envDefaults = map[string]any{
	"gateway.addr":          ":8080",
	"gateway.stage":         "ws",
	"store.driver":          string(registry.DriverMemory),
	"store.redis.addrs":     []string{"127.0.0.1:6379"},
	"store.redis.password":  "",
	"store.gorm.driver":     string(orm.SQLite),
	"store.gorm.dsn":        "file:wsrelay.db?_busy_timeout=5000",
	"delivery.mode":         DeliveryLocal,
	"delivery.scheme":       "https",
	"delivery.send_timeout": delivery.DefaultSendTimeout,
	"router.fanout_limit":   router.DefaultFanoutLimit,
	"log.level":             "info",
	"log.format":            "json",
	"log.sampling":          false,
	"tracing.enabled":       false,
	"tracing.exporter":      tracing.ExporterNoop,
	"tracing.endpoint":      "",
}

// loadConfig 读取配置文件与 WSRELAY_ 环境变量，path 为空时只使用默认值与环境变量
func loadConfig(path string) (*config.Config, *AppConfig, error) {
	opts := []config.Option{
		config.WithDefaults(envDefaults),
		config.WithEnvPrefix(envPrefix),
	}
	if path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg := config.New(opts...)
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}

	app := defaultAppConfig()
	if err := cfg.Unmarshal(app); err != nil {
		return nil, nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, app, nil
}

// Validate 校验字段约束与各组件配置
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", config.ErrValidateFailed, err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}

// Options 转换为 logger.Option
func (c *LogConfig) Options() []logger.Option {
	level, _ := logger.ParseLevel(c.Level)
	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(c.Format)),
		logger.WithCaller(c.Caller),
		logger.WithStacktrace(c.Stacktrace),
	}
	if c.Console {
		opts = append(opts, logger.WithConsoleOutput())
	}
	if c.Sampling {
		opts = append(opts, logger.WithSampling(&logger.SamplingConfig{
			Initial:    c.SamplingInitial,
			Thereafter: c.SamplingThereafter,
		}))
	}
	if c.File == "" {
		return opts
	}
	if c.Rotate {
		return append(opts, logger.WithRotateOutput(&logger.RotateConfig{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxAge:     c.MaxAge,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		}))
	}
	return append(opts, logger.WithFileOutput(c.File))
}
