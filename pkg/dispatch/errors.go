package dispatch

import "github.com/tokmz/wsrelay/pkg/errors"

// ErrEmptyMessage $default 事件没有消息体
var ErrEmptyMessage = errors.New(2010, 400, "Empty message", nil)
