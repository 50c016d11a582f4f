package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tokmz/wsrelay/pkg/delivery"
)

// Pool 本进程持有的 WebSocket 连接
// 同时实现 delivery.Pusher，未知连接返回 delivery.ErrGone
type Pool struct {
	clients  sync.Map // connectionID -> *client
	count    atomic.Int64
	maxConns int
}

// NewPool 创建连接池，maxConns <= 0 表示不限制
func NewPool(maxConns int) *Pool {
	return &Pool{maxConns: maxConns}
}

func (p *Pool) add(c *client) error {
	if _, loaded := p.clients.LoadOrStore(c.id, c); loaded {
		return ErrConnectionExists
	}
	if n := p.count.Add(1); p.maxConns > 0 && int(n) > p.maxConns {
		p.count.Add(-1)
		p.clients.Delete(c.id)
		return ErrTooManyConnections
	}
	return nil
}

func (p *Pool) remove(id string) {
	if _, loaded := p.clients.LoadAndDelete(id); loaded {
		p.count.Add(-1)
	}
}

func (p *Pool) get(id string) (*client, bool) {
	v, ok := p.clients.Load(id)
	if !ok {
		return nil, false
	}
	c, ok := v.(*client)
	return c, ok
}

// Count 当前连接数
func (p *Pool) Count() int {
	return int(p.count.Load())
}

// Full 是否已达上限
func (p *Pool) Full() bool {
	return p.maxConns > 0 && p.Count() >= p.maxConns
}

// Has 连接是否由本进程持有
func (p *Pool) Has(id string) bool {
	_, ok := p.get(id)
	return ok
}

// PostToConnection 写入连接的发送队列，队列满时等待至 ctx 结束
func (p *Pool) PostToConnection(ctx context.Context, connectionID string, data []byte) error {
	c, ok := p.get(connectionID)
	if !ok {
		return delivery.ErrGone
	}
	return c.enqueue(ctx, data)
}

// Close 关闭全部连接
func (p *Pool) Close() {
	p.clients.Range(func(_, v any) bool {
		if c, ok := v.(*client); ok {
			c.close()
		}
		return true
	})
}
