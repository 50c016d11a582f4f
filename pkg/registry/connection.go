package registry

import "maps"

// Connection 已连接客户端的持久化记录
type Connection struct {
	ConnectionID string         `json:"connectionId"`
	Connected    bool           `json:"connected"`
	UserData     map[string]any `json:"userData,omitempty"`
	RoomID       string         `json:"roomId,omitempty"`
	ConnectedAt  int64          `json:"connectedAt"`
}

// Username 返回连接时携带的 username，不存在或非字符串时为空
func (c *Connection) Username() string {
	if c == nil || c.UserData == nil {
		return ""
	}
	name, _ := c.UserData["username"].(string)
	return name
}

// Clone 深拷贝顶层字段，UserData 浅拷贝
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	if c.UserData != nil {
		cp.UserData = maps.Clone(c.UserData)
	}
	return &cp
}
