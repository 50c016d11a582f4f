package config

import "github.com/tokmz/wsrelay/pkg/errors"

// 配置包错误定义（5000 段）
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(5001, 500, "配置文件未找到", nil)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(5002, 500, "配置读取失败", nil)
	// ErrUnmarshalFailed 配置反序列化失败
	ErrUnmarshalFailed = errors.New(5003, 500, "配置反序列化失败", nil)
	// ErrNoConfigFile 未加载配置文件，无法监控
	ErrNoConfigFile = errors.New(5004, 500, "未加载配置文件", nil)
	// ErrValidateFailed 配置校验失败
	ErrValidateFailed = errors.New(5005, 500, "配置校验失败", nil)
)
