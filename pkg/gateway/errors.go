package gateway

import "github.com/tokmz/wsrelay/pkg/errors"

// 网关错误（4100 段）
var (
	ErrTooManyConnections = errors.New(4101, 503, "too many connections", nil)
	ErrConnectionExists   = errors.New(4102, 409, "connection id already exists", nil)
	ErrConnectionClosed   = errors.New(4103, 410, "connection closed", nil)
	ErrQueueFull          = errors.New(4104, 503, "send queue full", nil)
	ErrInvalidConfig      = errors.New(5020, 500, "invalid gateway config", nil)
)
