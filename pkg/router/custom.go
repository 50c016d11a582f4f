package router

import (
	"context"

	"go.uber.org/zap"
)

// 内置自定义路由键
const (
	RouteSendToUser = "sendToUser"
	RouteSendToRoom = "sendToRoom"
)

// handleSendToUser 投递给 userData.username 匹配 targetUser 的所有连接
func handleSendToUser(ctx context.Context, r *Router, connectionID string, body map[string]any) Outcome {
	target, message := body["targetUser"], body["message"]
	if !truthy(target) || !truthy(message) {
		return OutcomeFromError(ErrMissingTarget)
	}

	recipients := r.registry.ListByUser(ctx, text(target))
	n := r.Fanout(ctx, recipients, NewChat(nil, senderName(ctx, r, connectionID), message, r.Now()))
	r.log.InfoContext(ctx, "sent to user",
		zap.String("target_user", text(target)), zap.Int("delivered", n))
	return OK("Message sent to user")
}

// handleSendToRoom 投递给房间内除发送者外的所有连接
func handleSendToRoom(ctx context.Context, r *Router, connectionID string, body map[string]any) Outcome {
	roomID, message := body["roomId"], body["message"]
	if !truthy(roomID) || !truthy(message) {
		return OutcomeFromError(ErrMissingRoomBody)
	}

	room := text(roomID)
	recipients := r.registry.ListByRoom(ctx, room)
	n := r.Fanout(ctx, recipients, NewChat(room, senderName(ctx, r, connectionID), message, r.Now()), connectionID)
	r.log.InfoContext(ctx, "sent to room",
		zap.String("room_id", room), zap.Int("delivered", n))
	return OK("Message sent to room")
}

// senderName 发送者的 username，未知时为 Anonymous
func senderName(ctx context.Context, r *Router, connectionID string) string {
	if conn, ok := r.registry.Get(ctx, connectionID); ok {
		if name := conn.Username(); name != "" {
			return name
		}
	}
	return defaultUsername
}
