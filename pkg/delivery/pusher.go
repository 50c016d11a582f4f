package delivery

import (
	"context"

	"github.com/tokmz/wsrelay/pkg/errors"
)

// 投递错误（4000 段）
var (
	// ErrGone 目标连接已不存在
	ErrGone = errors.New(4010, 410, "connection gone", nil)
	// ErrPush 推送失败
	ErrPush = errors.New(4001, 502, "push to connection failed", nil)
	// ErrEncode 载荷编码失败
	ErrEncode = errors.New(4002, 500, "payload encode failed", nil)
)

// Pusher 向单个连接推送字节
// 连接已不存在时返回 ErrGone（可被 errors.Is 识别）
type Pusher interface {
	PostToConnection(ctx context.Context, connectionID string, data []byte) error
}

// PusherFunc 函数适配器
type PusherFunc func(ctx context.Context, connectionID string, data []byte) error

// PostToConnection 实现 Pusher
func (f PusherFunc) PostToConnection(ctx context.Context, connectionID string, data []byte) error {
	return f(ctx, connectionID, data)
}

// Reclaimer 回收已失效的连接记录
type Reclaimer interface {
	Remove(ctx context.Context, connectionID string) bool
}
