// Package websocket 提供聊天的 WebSocket 传输
// 客户端发送 chat:send，服务端依次推送 chat:chunk 和一个 chat:done / chat:error
package websocket

import (
	"encoding/json"
	"time"
)

// 消息类型
const (
	// 客户端 → 服务端
	TypeHeartbeat = "heartbeat" // 心跳
	TypeChatSend  = "chat:send" // 发送聊天消息

	// 服务端 → 客户端
	TypeChatChunk = "chat:chunk" // 流式片段
	TypeChatDone  = "chat:done"  // 回复完成
	TypeChatError = "chat:error" // 本轮失败，用户消息已删除
	TypePong      = "pong"       // 心跳响应
	TypeError     = "error"      // 协议错误
)

// Message WebSocket 消息结构
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload,omitempty"`    // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 客户端传入的追踪 ID，原样带回
}

// inboundMessage 客户端消息，payload 延迟解析
type inboundMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	MessageID string          `json:"message_id,omitempty"`
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewMessageWithID 创建带追踪 ID 的消息
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	msg := NewMessage(msgType, payload)
	msg.MessageID = messageID
	return msg
}

// ==================== Payload 类型定义 ====================

// ChatSendPayload 发送聊天消息
type ChatSendPayload struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	RoleID         *int64 `json:"role_id,omitempty"`
	UseContext     bool   `json:"use_context"`
}

// ChatChunkPayload 流式片段
type ChatChunkPayload struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
}

// ChatDonePayload 回复完成
type ChatDonePayload struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"` // AI 回复消息编号
	ReplyID        int64  `json:"reply_id"`   // 用户消息编号
	Model          string `json:"model"`
}

// ErrorPayload 错误消息
type ErrorPayload struct {
	ConversationID int64  `json:"conversation_id,omitempty"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
}
