package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/tokmz/wsrelay/pkg/errors"
	"github.com/tokmz/wsrelay/pkg/router"
)

// 保留路由键
const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

// RequestContext 事件的传输层上下文
type RequestContext struct {
	RouteKey     string `json:"routeKey"`
	ConnectionID string `json:"connectionId"`
	DomainName   string `json:"domainName"`
	Stage        string `json:"stage"`
}

// Event 传输层投递的单个事件
type Event struct {
	RequestContext        RequestContext    `json:"requestContext"`
	Body                  string            `json:"body,omitempty"`
	QueryStringParameters map[string]string `json:"queryStringParameters,omitempty"`
}

// Response 事件处理结果 {statusCode, body}
type Response = router.Outcome

// ParseEvent 解析 JSON 事件
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrBadRequest, err)
	}
	return &ev, nil
}

// valid 必填字段是否齐全
func (e *Event) valid() bool {
	rc := e.RequestContext
	return rc.ConnectionID != "" && rc.DomainName != "" && rc.Stage != ""
}

// userData 连接查询参数作为用户数据，无参数时为 nil
func (e *Event) userData() map[string]any {
	if len(e.QueryStringParameters) == 0 {
		return nil
	}
	out := make(map[string]any, len(e.QueryStringParameters))
	for k, v := range e.QueryStringParameters {
		out[k] = v
	}
	return out
}
