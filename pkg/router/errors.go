package router

import "github.com/tokmz/wsrelay/pkg/errors"

// 入站消息校验错误（2000 段），Message 即返回给调用方的 body
var (
	ErrInvalidFormat   = errors.New(2001, 400, "Invalid message format", nil)
	ErrMissingType     = errors.New(2002, 400, "Message missing type", nil)
	ErrUnknownType     = errors.New(2003, 400, "Unknown message type", nil)
	ErrEmptyChat       = errors.New(2004, 400, "Chat message is empty", nil)
	ErrRoomRequired    = errors.New(2005, 400, "Room ID is required", nil)
	ErrInvalidJSON     = errors.New(2006, 400, "Invalid JSON", nil)
	ErrMissingTarget   = errors.New(2007, 400, "Missing targetUser or message", nil)
	ErrMissingRoomBody = errors.New(2008, 400, "Missing roomId or message", nil)
	ErrUnhandledRoute  = errors.New(2009, 400, "Unhandled route", nil)
)

// 处理器表错误（2100 段）
var (
	ErrTableFrozen   = errors.New(2101, 500, "handler table is frozen", nil)
	ErrHandlerExists = errors.New(2102, 500, "handler already registered", nil)
	ErrOutboundType  = errors.New(2103, 500, "outbound-only message type", nil)
)
