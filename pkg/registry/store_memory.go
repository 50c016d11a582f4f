package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 进程内存储（单实例部署与测试）
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Connection
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Connection)}
}

func (m *MemoryStore) Put(_ context.Context, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[conn.ConnectionID] = conn.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conn.Clone(), nil
}

func (m *MemoryStore) SetRoom(_ context.Context, id string, update RoomUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if next, ok := update(conn.RoomID); ok {
		conn.RoomID = next
	}
	return nil
}

// Scan 按 ConnectedAt、ConnectionID 排序返回
func (m *MemoryStore) Scan(_ context.Context) ([]*Connection, error) {
	m.mu.RLock()
	out := make([]*Connection, 0, len(m.items))
	for _, conn := range m.items {
		out = append(out, conn.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out, nil
}

// Len 当前记录数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) Close() error { return nil }
