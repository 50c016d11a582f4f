package router

import (
	"context"
	"sync"
)

// Handler 入站消息处理器
type Handler func(ctx context.Context, r *Router, msg *Message) Outcome

// MiddlewareFunc 处理器中间件
type MiddlewareFunc func(ctx context.Context, r *Router, msg *Message, next Handler) Outcome

// RouteHandler 自定义路由处理器，body 为已解析的请求体（可能为空）
type RouteHandler func(ctx context.Context, r *Router, connectionID string, body map[string]any) Outcome

// Table 按消息类型与路由键分发的处理器表
// 启动时注册，Freeze 后只读并预编译中间件链
type Table struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	routes     map[string]RouteHandler
	middleware []MiddlewareFunc
	compiled   map[string]Handler
	frozen     bool
}

// NewTable 创建空处理器表
func NewTable() *Table {
	return &Table{
		handlers: make(map[string]Handler),
		routes:   make(map[string]RouteHandler),
	}
}

// DefaultTable 注册内置消息类型与自定义路由，可继续扩展后 Freeze
func DefaultTable() *Table {
	t := NewTable()
	t.mustRegister(TypeChat, handleChat)
	t.mustRegister(TypeJoinRoom, handleJoinRoom)
	t.mustRegister(TypeLeaveRoom, handleLeaveRoom)
	t.mustRegister(TypePing, handlePing)
	t.mustRegisterRoute(RouteSendToUser, handleSendToUser)
	t.mustRegisterRoute(RouteSendToRoom, handleSendToRoom)
	return t
}

func (t *Table) mustRegister(typ MessageType, h Handler) {
	if err := t.Register(string(typ), h); err != nil {
		panic(err)
	}
}

func (t *Table) mustRegisterRoute(key string, h RouteHandler) {
	if err := t.RegisterRoute(key, h); err != nil {
		panic(err)
	}
}

// Register 注册消息类型处理器，SYSTEM、PONG 等仅出站类型不可注册
func (t *Table) Register(typ string, h Handler) error {
	if outboundOnly(ParseMessageType(typ)) {
		return ErrOutboundType.WithMessage("outbound-only message type: " + typ)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	if _, exists := t.handlers[typ]; exists {
		return ErrHandlerExists.WithMessage("handler already registered: " + typ)
	}
	t.handlers[typ] = h
	return nil
}

// RegisterRoute 注册自定义路由处理器
func (t *Table) RegisterRoute(key string, h RouteHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	if _, exists := t.routes[key]; exists {
		return ErrHandlerExists.WithMessage("route already registered: " + key)
	}
	t.routes[key] = h
	return nil
}

// Use 添加中间件，只作用于消息类型处理器
func (t *Table) Use(mw ...MiddlewareFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	t.middleware = append(t.middleware, mw...)
	return nil
}

// Freeze 冻结并预编译处理器链，重复调用无副作用
func (t *Table) Freeze() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return t
	}
	t.frozen = true
	t.compiled = make(map[string]Handler, len(t.handlers))
	for typ, h := range t.handlers {
		t.compiled[typ] = chain(t.middleware, h)
	}
	return t
}

// HasRoute 是否注册了自定义路由
func (t *Table) HasRoute(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.routes[key]
	return ok
}

// Routes 已注册的自定义路由键
func (t *Table) Routes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.routes))
	for k := range t.routes {
		keys = append(keys, k)
	}
	return keys
}

func (t *Table) handler(typ string) (Handler, bool) {
	t.mu.RLock()
	if t.frozen {
		h, ok := t.compiled[typ]
		t.mu.RUnlock()
		return h, ok
	}
	h, ok := t.handlers[typ]
	mw := t.middleware
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return chain(mw, h), true
}

func (t *Table) route(key string) (RouteHandler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.routes[key]
	return h, ok
}

// chain 从后向前包装中间件
func chain(mw []MiddlewareFunc, h Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], h
		h = func(ctx context.Context, r *Router, msg *Message) Outcome {
			return m(ctx, r, msg, next)
		}
	}
	return h
}
