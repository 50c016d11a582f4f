package logger

import "context"

type contextKey string

const (
	connectionIDKey contextKey = "connection_id"
	routeKeyKey     contextKey = "route_key"
)

// WithConnectionID 在 context 中记录连接 ID，*Context 日志方法会自动带出
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, connectionID)
}

// WithRouteKey 在 context 中记录路由键
func WithRouteKey(ctx context.Context, routeKey string) context.Context {
	return context.WithValue(ctx, routeKeyKey, routeKey)
}

// ConnectionIDFrom 读取 context 中的连接 ID
func ConnectionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(connectionIDKey).(string)
	return id
}

// RouteKeyFrom 读取 context 中的路由键
func RouteKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(routeKeyKey).(string)
	return key
}
