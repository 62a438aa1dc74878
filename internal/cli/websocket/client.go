// Package websocket 处理 chatctl 与服务器的聊天 WebSocket 连接
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chongxue30/stu-agent/internal/cli/config"
)

// 消息类型常量
const (
	TypeHeartbeat = "heartbeat"
	TypePong      = "pong"
	TypeError     = "error"

	TypeChatSend  = "chat:send"
	TypeChatChunk = "chat:chunk"
	TypeChatDone  = "chat:done"
	TypeChatError = "chat:error"
)

// heartbeatInterval 心跳间隔
const heartbeatInterval = 30 * time.Second

// ErrClosed 连接已关闭
var ErrClosed = errors.New("连接已关闭")

// Message 发送给服务器的消息
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// inbound 服务器推送的消息
type inbound struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	MessageID string          `json:"message_id"`
}

// ChatRequest 一轮对话请求
type ChatRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	RoleID         *int64 `json:"role_id,omitempty"`
	UseContext     bool   `json:"use_context"`
}

// ChatResult 一轮对话完成
type ChatResult struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	ReplyID        int64  `json:"reply_id"`
	Model          string `json:"model"`
}

// ChatError 服务器返回的本轮错误，用户消息已被删除
type ChatError struct {
	ConversationID int64  `json:"conversation_id"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("对话失败 %d: %s", e.Code, e.Message)
}

// Client WebSocket 客户端
type Client struct {
	url      string
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	pending map[string]chan *inbound // message_id → 本轮回复
}

// NewClient 创建 WebSocket 客户端
// 参数:
//   - serverURL: HTTP 服务器地址（如 http://localhost:8080）
//   - token: 访问令牌
func NewClient(serverURL, token string) *Client {
	return &Client{
		url:      fmt.Sprintf("%s/ws/chat?token=%s", config.WebSocketURL(serverURL), url.QueryEscape(token)),
		sendChan: make(chan []byte, 64),
		done:     make(chan struct{}),
		pending:  make(map[string]chan *inbound),
	}
}

// Connect 连接到服务器
func (c *Client) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("连接失败 (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("连接失败: %w", err)
	}
	c.conn = conn

	go c.readPump()
	go c.writePump()
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = c.conn.Close()
		}
	})
}

// Done 连接关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Chat 发送一条消息并等待回复结束
// 每个 chat:chunk 回调一次 onChunk；ctx 取消时放弃等待
func (c *Client) Chat(ctx context.Context, req *ChatRequest, onChunk func(string)) (*ChatResult, error) {
	id := uuid.NewString()
	ch := make(chan *inbound, 64)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, &Message{Type: TypeChatSend, Payload: req, MessageID: id}); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case msg := <-ch:
			switch msg.Type {
			case TypeChatChunk:
				var chunk struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(msg.Payload, &chunk); err != nil {
					return nil, fmt.Errorf("解析回复片段失败: %w", err)
				}
				if onChunk != nil {
					onChunk(chunk.Content)
				}
			case TypeChatDone:
				var result ChatResult
				if err := json.Unmarshal(msg.Payload, &result); err != nil {
					return nil, fmt.Errorf("解析完成消息失败: %w", err)
				}
				return &result, nil
			default:
				chatErr := &ChatError{}
				if err := json.Unmarshal(msg.Payload, chatErr); err != nil {
					return nil, fmt.Errorf("解析错误消息失败: %w", err)
				}
				return nil, chatErr
			}
		}
	}
}

func (c *Client) send(ctx context.Context, msg *Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump 读取消息并分发给等待中的 Chat
func (c *Client) readPump() {
	defer c.Disconnect()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("invalid websocket message", "error", err)
			continue
		}

		switch msg.Type {
		case TypePong:
			continue
		case TypeChatChunk, TypeChatDone, TypeChatError, TypeError:
			c.mu.Lock()
			ch, ok := c.pending[msg.MessageID]
			c.mu.Unlock()
			if !ok {
				slog.Debug("websocket message without waiter", "type", msg.Type, "message_id", msg.MessageID)
				continue
			}
			select {
			case ch <- &msg:
			case <-c.done:
				return
			}
		}
	}
}

// writePump 写入消息，定时发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.sendChan:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket write failed", "error", err)
				c.Disconnect()
				return
			}

		case <-ticker.C:
			data, _ := json.Marshal(&Message{Type: TypeHeartbeat, MessageID: uuid.NewString(), Timestamp: time.Now().UnixMilli()})
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket heartbeat failed", "error", err)
				c.Disconnect()
				return
			}
		}
	}
}
