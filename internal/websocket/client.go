package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chongxue30/stu-agent/internal/handler"
	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB）
	maxMessageSize = 64 * 1024
)

// ChatStreamer 流式推理
type ChatStreamer interface {
	Stream(ctx context.Context, userID int64, req *service.SendRequest) (*service.ReplyStream, error)
}

// Client 表示一个 WebSocket 客户端连接
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	chat   ChatStreamer
	send   chan []byte
	userID int64

	// 连接关闭时取消，进行中的推理按中断处理
	ctx    context.Context
	cancel context.CancelFunc

	streams   sync.WaitGroup
	closeOnce sync.Once
}

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, chat ChatStreamer, userID int64) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		chat:   chat,
		send:   make(chan []byte, 256),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ReadPump 读取 WebSocket 消息
// 每个连接一个，退出时注销客户端
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.streams.Wait()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(NewMessage(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "消息格式错误"}))
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump 将 send 通道里的消息写入连接，并定时发送 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage 向客户端发送消息
// 流式片段不能丢弃，通道满时等待，连接关闭后返回 false
func (c *Client) SendMessage(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal websocket message", "type", msg.Type, "error", err)
		return false
	}

	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case TypeHeartbeat:
		c.SendMessage(NewMessageWithID(TypePong, nil, msg.MessageID))

	case TypeChatSend:
		var payload ChatSendPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil ||
			payload.ConversationID <= 0 || strings.TrimSpace(payload.Content) == "" {
			c.SendMessage(NewMessageWithID(TypeChatError, &ErrorPayload{
				ConversationID: payload.ConversationID,
				Code:           response.CodeBadRequest,
				Message:        "请求参数错误",
			}, msg.MessageID))
			return
		}

		c.streams.Add(1)
		go func() {
			defer c.streams.Done()
			c.streamChat(&payload, msg.MessageID)
		}()

	default:
		c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{
			Code:    response.CodeBadRequest,
			Message: "未知的消息类型: " + msg.Type,
		}, msg.MessageID))
	}
}

// streamChat 执行一轮流式推理，结束时恰好发送一个 chat:done 或 chat:error
func (c *Client) streamChat(payload *ChatSendPayload, traceID string) {
	req := &service.SendRequest{
		ConversationID: payload.ConversationID,
		Content:        payload.Content,
		RoleID:         payload.RoleID,
		UseContext:     payload.UseContext,
	}

	rs, err := c.chat.Stream(c.ctx, c.userID, req)
	if err != nil {
		c.sendError(payload.ConversationID, err, traceID)
		return
	}
	defer rs.Close()

	for rs.Next() {
		if !c.SendMessage(NewMessageWithID(TypeChatChunk, &ChatChunkPayload{
			ConversationID: payload.ConversationID,
			Content:        rs.Fragment(),
		}, traceID)) {
			// 连接已关闭，Close 会按中断处理
			return
		}
	}

	outcome := rs.Outcome()
	if outcome.Err != nil {
		c.sendError(payload.ConversationID, outcome.Err, traceID)
		return
	}
	c.SendMessage(NewMessageWithID(TypeChatDone, &ChatDonePayload{
		ConversationID: outcome.ConversationID,
		MessageID:      outcome.MessageID,
		ReplyID:        outcome.ReplyID,
		Model:          outcome.Model,
	}, traceID))
}

func (c *Client) sendError(conversationID int64, err error, traceID string) {
	status, known := handler.StatusOf(err)
	if !known {
		slog.Error("websocket chat failed", "user_id", c.userID, "conversation_id", conversationID, "error", err)
	}
	c.SendMessage(NewMessageWithID(TypeChatError, &ErrorPayload{
		ConversationID: conversationID,
		Code:           status.Code,
		Message:        handler.MessageOf(err),
	}, traceID))
}

// Close 关闭客户端，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(c.cancel)
}
