package registry

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/logger"
)

// Registry 连接注册表
// 存储错误只记录日志并转换为 bool 或空结果，不向调用方返回
type Registry struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

// Option 注册表选项
type Option func(*Registry)

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New 创建注册表
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		log:   logger.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("component", "registry"))
	return r
}

// Add 登记连接，重复登记整体覆盖
func (r *Registry) Add(ctx context.Context, id string, userData map[string]any) bool {
	if id == "" {
		return false
	}
	conn := &Connection{
		ConnectionID: id,
		Connected:    true,
		UserData:     userData,
		ConnectedAt:  r.now().Unix(),
	}
	if err := r.store.Put(ctx, conn); err != nil {
		r.log.ErrorContext(ctx, "add connection failed", zap.String("connection_id", id), zap.Error(err))
		return false
	}
	r.log.InfoContext(ctx, "connection added", zap.String("connection_id", id))
	return true
}

// Remove 注销连接，记录不存在同样返回 true
func (r *Registry) Remove(ctx context.Context, id string) bool {
	if err := r.store.Delete(ctx, id); err != nil {
		r.log.ErrorContext(ctx, "remove connection failed", zap.String("connection_id", id), zap.Error(err))
		return false
	}
	r.log.InfoContext(ctx, "connection removed", zap.String("connection_id", id))
	return true
}

// Get 读取单条记录
func (r *Registry) Get(ctx context.Context, id string) (*Connection, bool) {
	conn, err := r.store.Get(ctx, id)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			r.log.ErrorContext(ctx, "get connection failed", zap.String("connection_id", id), zap.Error(err))
		}
		return nil, false
	}
	return conn, true
}

// ListActive 返回当前已连接记录的快照
// 扫描失败时返回空切片，调用方按“无接收者”处理
func (r *Registry) ListActive(ctx context.Context) []*Connection {
	all, err := r.store.Scan(ctx)
	if err != nil {
		r.log.ErrorContext(ctx, "scan connections failed", zap.Error(err))
		return []*Connection{}
	}
	out := make([]*Connection, 0, len(all))
	for _, conn := range all {
		if conn != nil && conn.Connected {
			out = append(out, conn)
		}
	}
	return out
}

// ListByRoom 返回房间内的已连接记录
func (r *Registry) ListByRoom(ctx context.Context, room string) []*Connection {
	return r.filter(ctx, func(c *Connection) bool { return c.RoomID == room })
}

// ListByUser 返回 userData.username 匹配的已连接记录
func (r *Registry) ListByUser(ctx context.Context, username string) []*Connection {
	return r.filter(ctx, func(c *Connection) bool { return c.Username() == username })
}

func (r *Registry) filter(ctx context.Context, keep func(*Connection) bool) []*Connection {
	active := r.ListActive(ctx)
	out := make([]*Connection, 0, len(active))
	for _, conn := range active {
		if keep(conn) {
			out = append(out, conn)
		}
	}
	return out
}

// JoinRoom 记录房间成员关系，只修改已存在的记录
func (r *Registry) JoinRoom(ctx context.Context, id, room string) bool {
	err := r.store.SetRoom(ctx, id, func(current string) (string, bool) {
		return room, current != room
	})
	switch {
	case err == nil:
		return true
	case stderrors.Is(err, ErrNotFound):
		r.log.WarnContext(ctx, "join room on unknown connection",
			zap.String("connection_id", id), zap.String("room_id", room))
	default:
		r.log.ErrorContext(ctx, "join room failed",
			zap.String("connection_id", id), zap.String("room_id", room), zap.Error(err))
	}
	return false
}

// LeaveRoom 清除房间成员关系
// 记录已不存在或当前不在该房间时视为成功
func (r *Registry) LeaveRoom(ctx context.Context, id, room string) bool {
	err := r.store.SetRoom(ctx, id, func(current string) (string, bool) {
		return "", current == room
	})
	if err == nil || stderrors.Is(err, ErrNotFound) {
		return true
	}
	r.log.ErrorContext(ctx, "leave room failed",
		zap.String("connection_id", id), zap.String("room_id", room), zap.Error(err))
	return false
}

// Close 关闭底层存储
func (r *Registry) Close() error {
	return r.store.Close()
}
