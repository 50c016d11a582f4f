package router

import (
	"net/http"

	"github.com/tokmz/wsrelay/pkg/errors"
)

// Outcome 处理结果，状态码沿用 HTTP 语义
type Outcome struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// OK 200 结果
func OK(body string) Outcome {
	return Outcome{StatusCode: http.StatusOK, Body: body}
}

// OutcomeFromError 将错误转换为结果
// *errors.Error 使用其状态码与信息，其他错误一律为通用 500
func OutcomeFromError(err error) Outcome {
	var e *errors.Error
	if errors.As(err, &e) {
		return Outcome{StatusCode: e.HttpCode, Body: e.Message}
	}
	return Outcome{StatusCode: errors.ErrServer.HttpCode, Body: errors.ErrServer.Message}
}

// Success 是否为 2xx
func (o Outcome) Success() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}
