package gateway

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/delivery"
	"github.com/tokmz/wsrelay/pkg/dispatch"
	"github.com/tokmz/wsrelay/pkg/errors"
)

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": g.pool.Count()})
}

// handleConnect 分发 $connect，成功后才完成升级
func (g *Gateway) handleConnect(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "websocket upgrade required"})
		return
	}
	if g.pool.Full() {
		c.AbortWithStatusJSON(ErrTooManyConnections.HttpCode, gin.H{"message": ErrTooManyConnections.Message})
		return
	}

	id := uuid.NewString()
	// 先入池再分发 $connect，期间的推送进入发送队列而不会被判定为已断开
	cl := newClient(g, id, c.Request, c.ClientIP())
	if err := g.pool.add(cl); err != nil {
		cl.cancel()
		abort(c, err)
		return
	}

	ev := g.event(dispatch.RouteConnect, id, c.Request.Host)
	if query := c.Request.URL.Query(); len(query) > 0 {
		ev.QueryStringParameters = make(map[string]string, len(query))
		for k := range query {
			ev.QueryStringParameters[k] = query.Get(k)
		}
	}
	resp := g.dispatcher.Handle(c.Request.Context(), ev)
	if !resp.Success() {
		cl.discard()
		g.log.InfoContext(c.Request.Context(), "connect rejected",
			zap.String("connection_id", id), zap.Int("status", resp.StatusCode))
		c.AbortWithStatusJSON(resp.StatusCode, gin.H{"message": resp.Body})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		g.log.WarnContext(c.Request.Context(), "websocket upgrade failed", zap.String("connection_id", id), zap.Error(err))
		cl.close()
		return
	}

	go cl.run(conn)
}

func (g *Gateway) handlePost(c *gin.Context) {
	id := c.Param("id")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, g.cfg.MaxMessageSize+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": errors.ErrBadRequest.Message})
		return
	}
	if int64(len(body)) > g.cfg.MaxMessageSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"message": "payload too large"})
		return
	}

	err = g.pool.PostToConnection(c.Request.Context(), id, body)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, delivery.ErrGone):
		gone(c)
	default:
		abort(c, err)
	}
}

func (g *Gateway) handleInfo(c *gin.Context) {
	cl, ok := g.pool.get(c.Param("id"))
	if !ok {
		gone(c)
		return
	}
	c.JSON(http.StatusOK, cl.info())
}

func (g *Gateway) handleDelete(c *gin.Context) {
	cl, ok := g.pool.get(c.Param("id"))
	if !ok {
		gone(c)
		return
	}
	cl.close()
	c.Status(http.StatusNoContent)
}

func gone(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusGone, gin.H{"message": errors.ErrGone.Message})
}

// abort 以错误携带的状态码与信息结束请求
func abort(c *gin.Context, err error) {
	var e *errors.Error
	if errors.As(err, &e) {
		c.AbortWithStatusJSON(e.HttpCode, gin.H{"message": e.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": errors.ErrServer.Message})
}
