package router

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/wsrelay/pkg/delivery"
	"github.com/tokmz/wsrelay/pkg/registry"
	"github.com/tokmz/wsrelay/pkg/tracing"
)

// Broadcast 向所有已连接客户端投递，exclude 中的连接跳过
// 返回投递成功数；单个失败不影响其他接收者
func (r *Router) Broadcast(ctx context.Context, payload any, exclude ...string) int {
	return r.Fanout(ctx, r.registry.ListActive(ctx), payload, exclude...)
}

// Fanout 向给定连接集合并发投递，并发数受 fanoutLimit 限制
func (r *Router) Fanout(ctx context.Context, conns []*registry.Connection, payload any, exclude ...string) int {
	ctx, span := tracing.StartSpan(ctx, "router.fanout")
	defer span.End()

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	targets := make([]string, 0, len(conns))
	for _, c := range conns {
		if _, ok := skip[c.ConnectionID]; !ok {
			targets = append(targets, c.ConnectionID)
		}
	}
	span.SetAttributes(attribute.Int("wsrelay.recipients", len(targets)))
	if len(targets) == 0 {
		return 0
	}

	// 只编码一次
	data, err := delivery.Encode(payload)
	if err != nil {
		r.log.ErrorContext(ctx, "encode broadcast payload failed", zap.Error(err))
		tracing.RecordError(span, err)
		return 0
	}

	var (
		sent atomic.Int64
		g    errgroup.Group
	)
	g.SetLimit(r.fanoutLimit)
	for _, id := range targets {
		g.Go(func() error {
			if r.send(ctx, id, data) {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(sent.Load())
	span.SetAttributes(attribute.Int("wsrelay.delivered", n))
	r.log.InfoContext(ctx, "broadcast complete",
		zap.Int("recipients", len(targets)), zap.Int("delivered", n))
	return n
}

// send 在独立协程中投递，panic 只计为该接收者失败
func (r *Router) send(ctx context.Context, id string, data []byte) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(ctx, "panic recovered",
				zap.String("recipient", id),
				zap.Any("error", p),
				zap.String("stack", string(debug.Stack())),
			)
			ok = false
		}
	}()
	return r.sender.Send(ctx, id, data)
}
