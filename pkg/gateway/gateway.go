package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/dispatch"
	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/tracing"
)

// Dispatcher 处理传输层事件
type Dispatcher interface {
	Handle(ctx context.Context, ev *dispatch.Event) dispatch.Response
}

// Gateway WebSocket 网关
// 把连接生命周期与入站帧转换为事件交给 Dispatcher，并提供 @connections 管理接口
type Gateway struct {
	cfg        *Config
	engine     *gin.Engine
	server     *http.Server
	upgrader   *websocket.Upgrader
	pool       *Pool
	dispatcher Dispatcher
	routes     func(string) bool
	log        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option 网关选项
type Option func(*Gateway)

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

// WithRouteMatcher 判断路由键是否为已注册的自定义路由
func WithRouteMatcher(fn func(string) bool) Option {
	return func(g *Gateway) {
		g.routes = fn
	}
}

// New 创建网关，pool 应与 Dispatcher 的推送器共用
func New(cfg *Config, pool *Pool, d Dispatcher, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool(cfg.MaxConnections)
	}

	g := &Gateway{
		cfg:        cfg,
		upgrader:   newUpgrader(cfg),
		pool:       pool,
		dispatcher: d,
		routes:     func(string) bool { return false },
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(zap.String("component", "gateway"))
	g.ctx, g.cancel = context.WithCancel(context.Background())

	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	if cfg.TrustedProxies != nil {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	engine.Use(
		Recovery(g.log),
		tracing.Middleware(tracing.WithFilter(func(c *gin.Context) bool {
			return c.FullPath() != "/healthz"
		})),
		logger.Middleware(g.log, "/healthz"),
	)
	g.engine = engine
	g.register()
	return g, nil
}

func (g *Gateway) register() {
	g.engine.GET("/healthz", g.handleHealth)

	stage := g.engine.Group("/" + g.cfg.Stage)
	stage.GET("", g.handleConnect)
	stage.POST("/@connections/:id", g.handlePost)
	stage.GET("/@connections/:id", g.handleInfo)
	stage.DELETE("/@connections/:id", g.handleDelete)
}

// Handler 返回 HTTP 处理器
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Pool 返回连接池
func (g *Gateway) Pool() *Pool {
	return g.pool
}

// Run 启动 HTTP 服务，ctx 结束后优雅关闭
func (g *Gateway) Run(ctx context.Context) error {
	g.server = &http.Server{
		Addr:           g.cfg.Addr,
		Handler:        g.engine,
		ReadTimeout:    g.cfg.ReadTimeout,
		WriteTimeout:   g.cfg.WriteTimeout,
		IdleTimeout:    g.cfg.IdleTimeout,
		MaxHeaderBytes: g.cfg.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		g.log.Info("gateway listening", zap.String("addr", g.cfg.Addr), zap.String("stage", g.cfg.Stage))
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		g.log.Info("shutting down gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(shutdownCtx)
}

// Shutdown 关闭全部连接（逐个分发 $disconnect）后关闭 HTTP 服务
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.pool.Close()
	g.cancel()
	if g.server == nil {
		return nil
	}
	if err := g.server.Shutdown(ctx); err != nil {
		g.log.Error("gateway forced to close", zap.Error(err))
		return err
	}
	g.log.Info("gateway stopped")
	return nil
}

// event 构建事件，domainName 取请求 Host
func (g *Gateway) event(routeKey, connectionID, domain string) *dispatch.Event {
	return &dispatch.Event{
		RequestContext: dispatch.RequestContext{
			RouteKey:     routeKey,
			ConnectionID: connectionID,
			DomainName:   domain,
			Stage:        g.cfg.Stage,
		},
	}
}

// handleFrame 分发入站帧，失败结果只记录不回写
func (g *Gateway) handleFrame(c *client, data []byte) {
	ev := g.event(g.selectRoute(data), c.id, c.domain)
	ev.Body = string(data)

	resp := g.dispatcher.Handle(g.ctx, ev)
	if !resp.Success() {
		g.log.Debug("frame rejected",
			zap.String("connection_id", c.id),
			zap.String("route_key", ev.RequestContext.RouteKey),
			zap.Int("status", resp.StatusCode),
			zap.String("body", resp.Body),
		)
	}
}

// selectRoute 按 RouteSelectionKey 选择自定义路由，否则为 $default
func (g *Gateway) selectRoute(data []byte) string {
	key := g.cfg.RouteSelectionKey
	if key == "" {
		return dispatch.RouteDefault
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return dispatch.RouteDefault
	}
	var route string
	if raw, ok := probe[key]; !ok || json.Unmarshal(raw, &route) != nil {
		return dispatch.RouteDefault
	}
	if route == "" || !g.routes(route) {
		return dispatch.RouteDefault
	}
	return route
}

// disconnect 分发 $disconnect
func (g *Gateway) disconnect(id, domain string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteWait)
	defer cancel()
	g.dispatcher.Handle(ctx, g.event(dispatch.RouteDisconnect, id, domain))
}
