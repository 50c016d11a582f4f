package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/delivery"
	"github.com/tokmz/wsrelay/pkg/errors"
	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/router"
	"github.com/tokmz/wsrelay/pkg/tracing"
)

// Registry 分发器所需的注册表能力
type Registry interface {
	router.Registry
	Add(ctx context.Context, id string, userData map[string]any) bool
	Remove(ctx context.Context, id string) bool
}

// PusherFactory 按管理端点构建推送器
type PusherFactory func(endpoint string) delivery.Pusher

// HTTPPusherFactory 使用 HTTP 管理接口推送
func HTTPPusherFactory(opts ...delivery.HTTPOption) PusherFactory {
	return func(endpoint string) delivery.Pusher {
		return delivery.NewHTTPPusher(endpoint, opts...)
	}
}

// Dispatcher 事件分发器，最外层故障边界
// 无跨事件状态，Router 与投递通道按事件构建
type Dispatcher struct {
	registry    Registry
	pushers     PusherFactory
	table       *router.Table
	log         logger.Logger
	now         func() time.Time
	scheme      string
	sendTimeout time.Duration
	fanoutLimit int
}

// Option 分发器选项
type Option func(*Dispatcher)

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithTable 使用自定义处理器表
func WithTable(t *router.Table) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.table = t
		}
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithScheme 管理端点的 scheme，默认 https
func WithScheme(scheme string) Option {
	return func(d *Dispatcher) {
		d.scheme = scheme
	}
}

// WithSendTimeout 单次推送超时
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

// WithFanoutLimit 广播并发上限
func WithFanoutLimit(n int) Option {
	return func(d *Dispatcher) {
		d.fanoutLimit = n
	}
}

// New 创建分发器
func New(reg Registry, pushers PusherFactory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		pushers:     pushers,
		table:       router.DefaultTable().Freeze(),
		log:         logger.NewNop(),
		now:         time.Now,
		sendTimeout: delivery.DefaultSendTimeout,
		fanoutLimit: router.DefaultFanoutLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table 返回处理器表
func (d *Dispatcher) Table() *router.Table {
	return d.table
}

// Handle 处理单个事件，任何 panic 都转换为 500
func (d *Dispatcher) Handle(ctx context.Context, ev *Event) (resp Response) {
	var rc RequestContext
	if ev != nil {
		rc = ev.RequestContext
	}
	ctx = logger.WithRouteKey(logger.WithConnectionID(ctx, rc.ConnectionID), rc.RouteKey)
	ctx, span := tracing.StartSpan(ctx, "dispatch "+rc.RouteKey,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("wsrelay.route_key", rc.RouteKey),
			attribute.String("wsrelay.connection_id", rc.ConnectionID),
		),
	)

	defer func() {
		if p := recover(); p != nil {
			d.log.ErrorContext(ctx, "panic recovered",
				zap.Any("error", p),
				zap.String("stack", string(debug.Stack())),
			)
			tracing.RecordError(span, fmt.Errorf("panic: %v", p))
			resp = router.OutcomeFromError(errors.ErrServer)
		}
		tracing.SetStatusCode(span, resp.StatusCode)
		span.End()
	}()

	if ev == nil || !ev.valid() {
		d.log.WarnContext(ctx, "invalid event")
		return router.OutcomeFromError(errors.ErrBadRequest)
	}

	switch rc.RouteKey {
	case RouteConnect:
		return d.connect(ctx, ev)
	case RouteDisconnect:
		return d.disconnect(ctx, rc.ConnectionID)
	case RouteDefault:
		return d.inbound(ctx, ev)
	default:
		return d.routerFor(ev).RouteCustom(ctx, rc.RouteKey, rc.ConnectionID, ev.Body)
	}
}

func (d *Dispatcher) connect(ctx context.Context, ev *Event) Response {
	// 登记失败仍允许建立连接，后续广播不会触达该连接
	if !d.registry.Add(ctx, ev.RequestContext.ConnectionID, ev.userData()) {
		d.log.WarnContext(ctx, "connection accepted without registry record")
	}
	return router.OK("Connected")
}

func (d *Dispatcher) disconnect(ctx context.Context, id string) Response {
	d.registry.Remove(ctx, id)
	return router.OK("Disconnected")
}

func (d *Dispatcher) inbound(ctx context.Context, ev *Event) Response {
	if ev.Body == "" {
		return router.OutcomeFromError(ErrEmptyMessage)
	}
	var msg any
	if err := json.Unmarshal([]byte(ev.Body), &msg); err != nil {
		d.log.WarnContext(ctx, "invalid JSON body", zap.Error(err))
		return router.OutcomeFromError(router.ErrInvalidJSON)
	}
	return d.routerFor(ev).RouteInbound(ctx, ev.RequestContext.ConnectionID, msg)
}

// routerFor 构建事件范围的路由
func (d *Dispatcher) routerFor(ev *Event) *router.Router {
	rc := ev.RequestContext
	endpoint := delivery.Endpoint(rc.DomainName, rc.Stage, d.scheme)
	ch := delivery.NewChannel(d.pushers(endpoint), d.registry,
		delivery.WithSendTimeout(d.sendTimeout),
		delivery.WithLogger(d.log),
	)
	return router.New(d.registry, ch,
		router.WithTable(d.table),
		router.WithLogger(d.log),
		router.WithClock(d.now),
		router.WithFanoutLimit(d.fanoutLimit),
	)
}
