package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/delivery"
)

// client 单个 WebSocket 连接
// 一个读协程负责分发入站帧，一个写协程独占写操作
type client struct {
	id     string
	gw     *Gateway
	conn   atomic.Pointer[websocket.Conn]
	send   chan []byte
	domain string

	sourceIP    string
	userAgent   string
	connectedAt time.Time
	lastActive  atomic.Int64 // unix nano

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newClient(gw *Gateway, id string, r *http.Request, sourceIP string) *client {
	ctx, cancel := context.WithCancel(gw.ctx)
	c := &client{
		id:          id,
		gw:          gw,
		send:        make(chan []byte, gw.cfg.SendQueueSize),
		domain:      r.Host,
		sourceIP:    sourceIP,
		userAgent:   r.UserAgent(),
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.touch()
	return c
}

func (c *client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// run 绑定底层连接，启动写协程并在当前协程读取，读结束后关闭连接
// 升级完成前已被关闭的连接直接断开
func (c *client) run(conn *websocket.Conn) {
	c.conn.Store(conn)
	if c.ctx.Err() != nil {
		_ = conn.Close()
		return
	}
	go c.writePump(conn)
	c.readPump(conn)
}

func (c *client) readPump(conn *websocket.Conn) {
	defer c.close()

	cfg := c.gw.cfg
	conn.SetReadLimit(cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(cfg.HeartbeatTimeout)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		c.touch()
		return conn.SetReadDeadline(time.Now().Add(cfg.HeartbeatTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.gw.log.Warn("unexpected close", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		c.touch()
		c.gw.handleFrame(c, data)
	}
}

func (c *client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(c.gw.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			if err := write(conn, c.gw.cfg.WriteWait, websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := write(conn, c.gw.cfg.WriteWait, websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func write(conn *websocket.Conn, wait time.Duration, messageType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// enqueue 写入发送队列
// 连接已关闭返回 ErrGone，ctx 先结束返回 ErrPush
func (c *client) enqueue(ctx context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return delivery.ErrGone
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return delivery.ErrGone
	case <-ctx.Done():
		return delivery.ErrPush.WithError(ErrQueueFull)
	}
}

// close 只执行一次：移出连接池，关闭底层连接，分发 $disconnect
// 发送队列不关闭，写协程随 ctx 退出
func (c *client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.gw.pool.remove(c.id)
		if conn := c.conn.Load(); conn != nil {
			deadline := time.Now().Add(c.gw.cfg.WriteWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		}
		c.gw.disconnect(c.id, c.domain)
	})
}

// discard 丢弃未完成 $connect 的连接，不分发 $disconnect
func (c *client) discard() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.gw.pool.remove(c.id)
	})
}

// info @connections 查询结果
func (c *client) info() connectionInfo {
	return connectionInfo{
		ConnectionID: c.id,
		ConnectedAt:  c.connectedAt.UTC(),
		LastActiveAt: time.Unix(0, c.lastActive.Load()).UTC(),
		Identity: identity{
			SourceIP:  c.sourceIP,
			UserAgent: c.userAgent,
		},
	}
}

type connectionInfo struct {
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Identity     identity  `json:"identity"`
}

type identity struct {
	SourceIP  string `json:"sourceIp"`
	UserAgent string `json:"userAgent"`
}
