package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	defaultRoom     = "default"
	defaultUsername = "Anonymous"
)

// handleChat 广播聊天消息，发送者本人不接收
func handleChat(ctx context.Context, r *Router, msg *Message) Outcome {
	message, _ := msg.Get("message")
	if !truthy(message) {
		return OutcomeFromError(ErrEmptyChat)
	}

	env := NewChat(
		msg.Default("room_id", defaultRoom),
		msg.Default("username", defaultUsername),
		message,
		r.Now(),
	)
	r.Broadcast(ctx, env, msg.ConnectionID)
	return OK("Message sent")
}

// handleJoinRoom 记录房间成员并通知其他所有连接
func handleJoinRoom(ctx context.Context, r *Router, msg *Message) Outcome {
	return roomMembership(ctx, r, msg, true)
}

// handleLeaveRoom 清除房间成员并通知其他所有连接
func handleLeaveRoom(ctx context.Context, r *Router, msg *Message) Outcome {
	return roomMembership(ctx, r, msg, false)
}

func roomMembership(ctx context.Context, r *Router, msg *Message, join bool) Outcome {
	roomID, _ := msg.Get("room_id")
	if !truthy(roomID) {
		return OutcomeFromError(ErrRoomRequired)
	}
	room := text(roomID)
	username := text(msg.Default("username", defaultUsername))

	var (
		notice string
		body   string
		ok     bool
	)
	if join {
		ok = r.registry.JoinRoom(ctx, msg.ConnectionID, room)
		notice, body = fmt.Sprintf("%s has joined the room", username), "Joined room"
	} else {
		ok = r.registry.LeaveRoom(ctx, msg.ConnectionID, room)
		notice, body = fmt.Sprintf("%s has left the room", username), "Left room"
	}
	if !ok {
		// 成员关系写入失败不影响通知
		r.log.WarnContext(ctx, "room membership not persisted",
			zap.String("connection_id", msg.ConnectionID), zap.String("room_id", room), zap.Bool("join", join))
	}

	r.Broadcast(ctx, NewSystem(notice, roomID, r.Now()), msg.ConnectionID)
	return OK(body)
}

// handlePing 仅向发送者回复 PONG
func handlePing(ctx context.Context, r *Router, msg *Message) Outcome {
	r.Send(ctx, msg.ConnectionID, NewPong(r.Now()))
	return OK("Pong sent")
}
