package orm

import (
	"time"

	"github.com/tokmz/wsrelay/pkg/errors"
)

// Driver 数据库类型
type Driver string

const (
	MySQL     Driver = "mysql"
	Postgres  Driver = "postgres"
	SQLite    Driver = "sqlite"
	SQLServer Driver = "sqlserver"
)

// ErrInvalidConfig 数据库配置错误
var ErrInvalidConfig = errors.New(3101, 500, "database config invalid", nil)

// Config 数据库配置
type Config struct {
	Driver Driver `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// 连接池
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	PrepareStmt   bool          `mapstructure:"prepare_stmt"`
	TablePrefix   string        `mapstructure:"table_prefix"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	// 是否在 Span 中记录完整 SQL
	TraceSQL bool `mapstructure:"trace_sql"`

	// 只读副本 DSN（Scan 等读操作走副本）
	Replicas []string `mapstructure:"replicas"`
	// 副本负载均衡：random / round_robin
	ReplicaPolicy string `mapstructure:"replica_policy"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Driver:          SQLite,
		DSN:             "file:wsrelay.db?_busy_timeout=5000",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		SlowThreshold:   200 * time.Millisecond,
		ReplicaPolicy:   "random",
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrInvalidConfig.WithMessage("dsn is required")
	}
	switch c.Driver {
	case MySQL, Postgres, SQLite, SQLServer:
	default:
		return ErrInvalidConfig.WithMessage("unsupported driver: " + string(c.Driver))
	}
	switch c.ReplicaPolicy {
	case "", "random", "round_robin":
	default:
		return ErrInvalidConfig.WithMessage("unsupported replica policy: " + c.ReplicaPolicy)
	}
	return nil
}
