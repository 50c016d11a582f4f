package router

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/registry"
)

// DefaultFanoutLimit 广播默认并发上限
const DefaultFanoutLimit = 32

// Registry 路由所需的注册表能力
type Registry interface {
	Get(ctx context.Context, id string) (*registry.Connection, bool)
	ListActive(ctx context.Context) []*registry.Connection
	ListByRoom(ctx context.Context, room string) []*registry.Connection
	ListByUser(ctx context.Context, username string) []*registry.Connection
	JoinRoom(ctx context.Context, id, room string) bool
	LeaveRoom(ctx context.Context, id, room string) bool
}

// Sender 单连接投递
type Sender interface {
	Send(ctx context.Context, connectionID string, payload any) bool
}

// Router 单个事件范围内的消息路由
// 处理器表在事件间共享，Sender 按事件构建
type Router struct {
	table       *Table
	registry    Registry
	sender      Sender
	log         logger.Logger
	now         func() time.Time
	fanoutLimit int
}

// Option 路由选项
type Option func(*Router)

// WithTable 使用自定义处理器表
func WithTable(t *Table) Option {
	return func(r *Router) {
		r.table = t
	}
}

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithFanoutLimit 设置广播并发上限
func WithFanoutLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.fanoutLimit = n
		}
	}
}

var defaultTable = DefaultTable().Freeze()

// New 创建路由
func New(reg Registry, sender Sender, opts ...Option) *Router {
	r := &Router{
		table:       defaultTable,
		registry:    reg,
		sender:      sender,
		log:         logger.NewNop(),
		now:         time.Now,
		fanoutLimit: DefaultFanoutLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry 返回注册表
func (r *Router) Registry() Registry {
	return r.registry
}

// Logger 返回日志
func (r *Router) Logger() logger.Logger {
	return r.log
}

// Now 当前 unix 秒
func (r *Router) Now() int64 {
	return r.now().Unix()
}

// RouteInbound 处理 $default 路由的入站消息
// msg 应为已解析的 JSON 对象
func (r *Router) RouteInbound(ctx context.Context, connectionID string, msg any) Outcome {
	obj, ok := msg.(map[string]any)
	if !ok {
		r.log.ErrorContext(ctx, "invalid message format", zap.String("connection_id", connectionID))
		return OutcomeFromError(ErrInvalidFormat)
	}

	rawType, present := obj["type"]
	if !present || !truthy(rawType) {
		r.log.ErrorContext(ctx, "message missing type", zap.String("connection_id", connectionID))
		return OutcomeFromError(ErrMissingType)
	}
	typ := text(rawType)

	kind := ParseMessageType(typ)
	handler, ok := r.table.handler(typ)
	if !ok || outboundOnly(kind) {
		r.log.WarnContext(ctx, "unknown message type",
			zap.String("connection_id", connectionID), zap.String("type", typ))
		return OutcomeFromError(ErrUnknownType.WithMessage("Unknown message type: " + typ))
	}

	var data map[string]any
	switch d := obj["data"].(type) {
	case nil:
		data = map[string]any{}
	case map[string]any:
		data = d
	default:
		r.log.ErrorContext(ctx, "message data is not an object",
			zap.String("connection_id", connectionID), zap.String("type", typ))
		return OutcomeFromError(ErrInvalidFormat)
	}

	return handler(ctx, r, &Message{ConnectionID: connectionID, Type: typ, Data: data})
}

// RouteCustom 处理自定义路由键
// body 非空时必须是合法 JSON，非对象的 JSON 按空对象处理
func (r *Router) RouteCustom(ctx context.Context, routeKey, connectionID, body string) Outcome {
	r.log.InfoContext(ctx, "custom route", zap.String("route_key", routeKey), zap.String("connection_id", connectionID))

	payload := map[string]any{}
	if body != "" {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			r.log.ErrorContext(ctx, "invalid JSON in custom route body",
				zap.String("route_key", routeKey), zap.Error(err))
			return OutcomeFromError(ErrInvalidJSON)
		}
		if m, ok := v.(map[string]any); ok {
			payload = m
		}
	}

	handler, ok := r.table.route(routeKey)
	if !ok {
		r.log.WarnContext(ctx, "unhandled custom route", zap.String("route_key", routeKey))
		return OutcomeFromError(ErrUnhandledRoute.WithMessage("Unhandled route: " + routeKey))
	}
	return handler(ctx, r, connectionID, payload)
}

// Send 向单个连接投递
func (r *Router) Send(ctx context.Context, connectionID string, payload any) bool {
	return r.sender.Send(ctx, connectionID, payload)
}
