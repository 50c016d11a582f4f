package delivery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/logger"
)

// DefaultSendTimeout 单次推送默认超时
const DefaultSendTimeout = 3 * time.Second

// Channel 单个事件范围内的投递通道
// 每次 Send 恰好调用一次 Pusher，不重试不合并
type Channel struct {
	pusher    Pusher
	reclaimer Reclaimer
	timeout   time.Duration
	log       logger.Logger
}

// Option 通道选项
type Option func(*Channel)

// WithSendTimeout 设置单次推送超时
func WithSendTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(c *Channel) {
		c.log = log
	}
}

// NewChannel 创建投递通道，reclaimer 可为 nil
func NewChannel(pusher Pusher, reclaimer Reclaimer, opts ...Option) *Channel {
	c := &Channel{
		pusher:    pusher,
		reclaimer: reclaimer,
		timeout:   DefaultSendTimeout,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send 向单个连接投递载荷
// []byte、string、json.RawMessage 原样发送，其他类型编码为 JSON
// 目标已失效时同步回收记录并返回 false
func (c *Channel) Send(ctx context.Context, connectionID string, payload any) bool {
	if c.pusher == nil {
		panic("delivery: channel has no pusher")
	}

	data, err := Encode(payload)
	if err != nil {
		c.log.ErrorContext(ctx, "encode payload failed", zap.String("connection_id", connectionID), zap.Error(err))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err = c.pusher.PostToConnection(sendCtx, connectionID, data)
	switch {
	case err == nil:
		return true
	case stderrors.Is(err, ErrGone):
		c.log.InfoContext(ctx, "connection gone, reclaiming", zap.String("connection_id", connectionID))
		if c.reclaimer != nil {
			c.reclaimer.Remove(ctx, connectionID)
		}
		return false
	default:
		c.log.WarnContext(ctx, "push failed", zap.String("connection_id", connectionID), zap.Error(err))
		return false
	}
}

// Encode 将载荷转换为待发送字节
func Encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		return data, nil
	}
}
