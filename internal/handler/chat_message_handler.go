package handler

import (
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// 流式帧类型
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// StreamFrame SSE 帧内容
// 先有零个或多个 chunk，最后恰好一个 done 或 error
type StreamFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MessageID int64  `json:"message_id,omitempty"`
	ReplyID   int64  `json:"reply_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChatMessageHandler 聊天消息
type ChatMessageHandler struct {
	chatService    *service.ChatService
	messageService *service.MessageService
}

// NewChatMessageHandler 创建 ChatMessageHandler 实例
func NewChatMessageHandler(chatService *service.ChatService, messageService *service.MessageService) *ChatMessageHandler {
	return &ChatMessageHandler{
		chatService:    chatService,
		messageService: messageService,
	}
}

// Send 发送消息（阻塞等待完整回复）
// @Router /api/v1/ai/chat/message/send [post]
func (h *ChatMessageHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.SendRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.chatService.Invoke(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, result)
}

// SendStream 发送消息（SSE 流式回复）
// 开始推理之前的错误以普通 JSON 返回；流开始后的错误以 error 帧结束
// @Router /api/v1/ai/chat/message/send-stream [post]
func (h *ChatMessageHandler) SendStream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.SendRequest
	if !bindJSON(c, &req) {
		return
	}

	rs, err := h.chatService.Stream(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	defer rs.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for rs.Next() {
		writeFrame(c, StreamFrame{Type: FrameChunk, Content: rs.Fragment()})
	}

	// Next 返回 false 时回复已保存或用户消息已删除
	outcome := rs.Outcome()
	if outcome.Err != nil {
		_ = c.Error(outcome.Err)
		writeFrame(c, StreamFrame{Type: FrameError, Error: MessageOf(outcome.Err)})
		return
	}
	writeFrame(c, StreamFrame{
		Type:      FrameDone,
		MessageID: outcome.MessageID,
		ReplyID:   outcome.ReplyID,
		Model:     outcome.Model,
	})
}

func writeFrame(c *gin.Context, frame StreamFrame) {
	c.Render(-1, sse.Event{Data: frame})
	c.Writer.Flush()
}

// Remember 带内存记忆的对话
// @Router /api/v1/ai/chat/message/remember [post]
func (h *ChatMessageHandler) Remember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.RememberRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.chatService.Remember(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, result)
}

// List 对话的消息列表，按时间正序
// @Router /api/v1/ai/chat/message/list/{conversation_id} [get]
func (h *ChatMessageHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	messages, err := h.messageService.List(c.Request.Context(), userID, conversationID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, messages)
}

// Delete 删除消息（软删除）
// @Router /api/v1/ai/chat/message/delete/{id} [delete]
func (h *ChatMessageHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), userID, id); err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, true)
}
