package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/orm"
)

// Driver 存储类型
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverGorm   Driver = "gorm"
)

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 存储配置
type Config struct {
	Driver Driver       `mapstructure:"driver"`
	Redis  *RedisConfig `mapstructure:"redis"`
	Gorm   *orm.Config  `mapstructure:"gorm"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Mode       RedisMode `mapstructure:"mode"`
	Addrs      []string  `mapstructure:"addrs"` // 单机取第一个地址
	MasterName string    `mapstructure:"master_name"`
	Username   string    `mapstructure:"username"`
	Password   string    `mapstructure:"password"`
	DB         int       `mapstructure:"db"`
	// 键前缀，默认带 hash tag 保证集群模式下记录与索引落在同一 slot
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig 返回默认配置（内存存储）
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverMemory,
		Redis:  DefaultRedisConfig(),
		Gorm:   orm.DefaultConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Mode:        RedisStandalone,
		Addrs:       []string{"127.0.0.1:6379"},
		KeyPrefix:   "{wsrelay}:",
		PoolSize:    20,
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverRedis:
		if c.Redis == nil || len(c.Redis.Addrs) == 0 {
			return ErrInvalidConfig.WithMessage("redis addrs are required")
		}
		switch c.Redis.Mode {
		case "", RedisStandalone, RedisCluster:
		case RedisSentinel:
			if c.Redis.MasterName == "" {
				return ErrInvalidConfig.WithMessage("sentinel mode requires master_name")
			}
		default:
			return ErrInvalidConfig.WithMessage("unsupported redis mode: " + string(c.Redis.Mode))
		}
		return nil
	case DriverGorm:
		if c.Gorm == nil {
			return ErrInvalidConfig.WithMessage("gorm config is required")
		}
		if err := c.Gorm.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return nil
	default:
		return ErrInvalidConfig.WithMessage("unsupported driver: " + string(c.Driver))
	}
}

// NewStore 按 Driver 创建存储
func NewStore(ctx context.Context, cfg *Config, log logger.Logger) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverRedis:
		client := NewRedisClient(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	case DriverGorm:
		db, err := orm.Open(cfg.Gorm, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return NewMemoryStore(), nil
	}
}

// NewRedisClient 按部署模式创建 UniversalClient
func NewRedisClient(cfg *RedisConfig) redis.UniversalClient {
	switch cfg.Mode {
	case RedisCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	case RedisSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Addrs[0],
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}
}
