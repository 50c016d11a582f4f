package registry

import (
	"context"

	"github.com/tokmz/wsrelay/pkg/errors"
)

// 存储层错误（3000 段）
var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New(3001, 404, "connection not found", nil)
	// ErrStore 存储访问失败
	ErrStore = errors.New(3002, 500, "store operation failed", nil)
	// ErrEncode 记录编解码失败
	ErrEncode = errors.New(3003, 500, "connection record codec failed", nil)
	// ErrInvalidConfig 存储配置错误
	ErrInvalidConfig = errors.New(3004, 500, "store config invalid", nil)
)

// ErrConflict 并发修改重试耗尽
var ErrConflict = errors.New(3005, 409, "connection record modified concurrently", nil)

// RoomUpdate 根据当前房间计算新房间
type RoomUpdate func(current string) (next string, ok bool)

// maxUpdateAttempts 乐观更新的最大尝试次数
const maxUpdateAttempts = 3

// Store 连接记录存储适配器
type Store interface {
	// Put 写入记录，已存在时整体覆盖
	Put(ctx context.Context, conn *Connection) error
	// Delete 删除记录，记录不存在不视为错误
	Delete(ctx context.Context, id string) error
	// Get 读取记录，不存在返回 ErrNotFound
	Get(ctx context.Context, id string) (*Connection, error)
	// SetRoom 原子地修改房间字段，update 返回 false 时不写入
	// 记录不存在返回 ErrNotFound，不会创建记录
	SetRoom(ctx context.Context, id string, update RoomUpdate) error
	// Scan 返回全部记录的有限快照
	Scan(ctx context.Context) ([]*Connection, error)
	// Close 释放底层资源
	Close() error
}
