package router

import "fmt"

// MessageType 消息类型
type MessageType string

const (
	// TypeUnknown 无法识别的类型
	TypeUnknown MessageType = ""

	TypeChat      MessageType = "CHAT"
	TypeJoinRoom  MessageType = "JOIN_ROOM"
	TypeLeaveRoom MessageType = "LEAVE_ROOM"
	TypePing      MessageType = "PING"

	// 仅出站
	TypeSystem MessageType = "SYSTEM"
	TypePong   MessageType = "PONG"
)

// ParseMessageType 解析类型名，大小写敏感，未知名称返回 TypeUnknown
func ParseMessageType(s string) MessageType {
	switch t := MessageType(s); t {
	case TypeChat, TypeJoinRoom, TypeLeaveRoom, TypePing, TypeSystem, TypePong:
		return t
	default:
		return TypeUnknown
	}
}

// Inbound 用户可发送的类型
// TypeUnknown 返回 false，扩展类型由处理器表决定是否接受
func (t MessageType) Inbound() bool {
	switch t {
	case TypeChat, TypeJoinRoom, TypeLeaveRoom, TypePing:
		return true
	default:
		return false
	}
}

// outboundOnly 已知但不可入站的类型
func outboundOnly(t MessageType) bool {
	return t != TypeUnknown && !t.Inbound()
}

// Envelope 出站消息 {"type": ..., "data": {...}}
type Envelope struct {
	Type MessageType    `json:"type"`
	Data map[string]any `json:"data"`
}

// Message 已解析的入站消息
type Message struct {
	ConnectionID string
	// Type 原始类型名
	Type string
	Data map[string]any
}

// Get 读取 data 字段
func (m *Message) Get(key string) (any, bool) {
	v, ok := m.Data[key]
	return v, ok
}

// Default 读取 data 字段，缺失时返回 def
func (m *Message) Default(key string, def any) any {
	if v, ok := m.Data[key]; ok {
		return v
	}
	return def
}

// NewChat CHAT 消息
func NewChat(roomID, username, message any, ts int64) Envelope {
	return Envelope{
		Type: TypeChat,
		Data: map[string]any{
			"room_id":   roomID,
			"username":  username,
			"message":   message,
			"timestamp": ts,
		},
	}
}

// NewSystem SYSTEM 通知
func NewSystem(message string, roomID any, ts int64) Envelope {
	return Envelope{
		Type: TypeSystem,
		Data: map[string]any{
			"message":   message,
			"room_id":   roomID,
			"timestamp": ts,
		},
	}
}

// NewPong PONG 应答
func NewPong(ts int64) Envelope {
	return Envelope{
		Type: TypePong,
		Data: map[string]any{"timestamp": ts},
	}
}

// truthy 空值、空字符串、零值、空集合视为缺失
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// text 将任意值格式化为文本
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
