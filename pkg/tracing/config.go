package tracing

import (
	"time"

	"github.com/tokmz/wsrelay/pkg/errors"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp"     // OTLP over HTTP
	ExporterOTLPGRPC = "otlpgrpc" // OTLP over gRPC
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(5010, 500, "tracing config invalid", nil)

// Config 链路追踪配置
type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`

	// 导出器（otlp/otlpgrpc/stdout/noop）
	Exporter string            `mapstructure:"exporter"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	Insecure bool              `mapstructure:"insecure"`

	// 采样（always/never/ratio/parent_based）
	Sampler      string  `mapstructure:"sampler"`
	SamplingRate float64 `mapstructure:"sampling_rate"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置（禁用状态，使用 noop 导出器）
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "wsrelay",
		ServiceVersion:     "dev",
		Environment:        "development",
		Exporter:           ExporterNoop,
		Sampler:            "parent_based",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage("sampling rate must be between 0.0 and 1.0")
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig.WithMessage("invalid exporter: " + c.Exporter)
	}
	return nil
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.Exporter == "" {
		c.Exporter = def.Exporter
	}
	if c.Sampler == "" {
		c.Sampler = def.Sampler
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	if c.MaxExportBatchSize <= 0 {
		c.MaxExportBatchSize = def.MaxExportBatchSize
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
}
