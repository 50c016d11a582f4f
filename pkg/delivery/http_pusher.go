package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/wsrelay/pkg/tracing"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPPusher 调用 POST {endpoint}/@connections/{id} 推送
type HTTPPusher struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	headers  map[string]string
}

// HTTPOption HTTPPusher 选项
type HTTPOption func(*HTTPPusher)

// WithHTTPClient 使用自定义 http.Client，nil 时使用默认客户端
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPPusher) {
		p.client = client
	}
}

// WithTimeout 设置客户端超时（与 Channel 的单次超时取较小者生效）
// 不修改 WithHTTPClient 传入的客户端
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPPusher) {
		p.timeout = d
	}
}

// WithHeader 添加固定请求头（如管理端点的鉴权头）
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPPusher) {
		p.headers[key] = value
	}
}

// NewHTTPPusher 创建 HTTP 推送客户端
func NewHTTPPusher(endpoint string, opts ...HTTPOption) *HTTPPusher {
	p := &HTTPPusher{
		endpoint: strings.TrimRight(endpoint, "/"),
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}

	switch {
	case p.client == nil:
		timeout := p.timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		p.client = &http.Client{Timeout: timeout}
	case p.timeout > 0 && p.client.Timeout != p.timeout:
		client := *p.client
		client.Timeout = p.timeout
		p.client = &client
	}
	return p
}

// Endpoint 返回管理端点
func (p *HTTPPusher) Endpoint() string {
	return p.endpoint
}

// PostToConnection 实现 Pusher
// 2xx 成功，410 返回 ErrGone，其余状态返回 ErrPush
func (p *HTTPPusher) PostToConnection(ctx context.Context, connectionID string, data []byte) error {
	target := p.endpoint + "/@connections/" + url.PathEscape(connectionID)

	ctx, span := tracing.StartSpan(ctx, "POST @connections",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(http.MethodPost),
			semconv.URLFull(target),
			attribute.String("wsrelay.connection_id", connectionID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("%w: %w", ErrPush, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("%w: %w", ErrPush, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone:
		return ErrGone
	default:
		err := ErrPush.WithError(fmt.Errorf("unexpected status %d", resp.StatusCode))
		tracing.RecordError(span, err)
		return err
	}
}
