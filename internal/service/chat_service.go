package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/config"
	"github.com/chongxue30/stu-agent/internal/history"
	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/metrics"
	"github.com/chongxue30/stu-agent/internal/model"
)

const (
	// 补偿删除使用独立的超时，不受请求取消影响
	compensateTimeout = 5 * time.Second

	// remember 接口的系统提示
	rememberPrompt = "你是一个乐于助人的助手。用%s尽你所能回答所有问题。"

	defaultTurnTTL = 5 * time.Minute
)

// ChatService 对话推理服务
// 负责模型解析、上下文组装、调用模型以及失败后的补偿删除
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	assembler     *ContextAssembler
	resolver      *ModelResolver
	history       *history.Store
	metrics       *metrics.Recorder
	locker        TurnLocker
	cfg           config.AIConfig
}

// NewChatService 创建 ChatService 实例
// locker 和 recorder 可以为 nil
func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	assembler *ContextAssembler,
	resolver *ModelResolver,
	store *history.Store,
	recorder *metrics.Recorder,
	locker TurnLocker,
	cfg config.AIConfig,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		assembler:     assembler,
		resolver:      resolver,
		history:       store,
		metrics:       recorder,
		locker:        locker,
		cfg:           cfg,
	}
}

// SendRequest 发送消息请求
type SendRequest struct {
	ConversationID int64  `json:"conversation_id" binding:"required"` // 对话编号
	Content        string `json:"content" binding:"required"`         // 消息内容
	RoleID         *int64 `json:"role_id"`                            // 角色编号，可选
	UseContext     bool   `json:"use_context"`                        // 是否携带历史上下文
}

// SendResponse 发送消息响应
type SendResponse struct {
	MessageID      int64  `json:"message_id"`      // AI 回复消息编号
	ReplyID        int64  `json:"reply_id"`        // 对应的用户消息编号
	Content        string `json:"content"`         // AI 回复内容
	ConversationID int64  `json:"conversation_id"` // 对话编号
	Model          string `json:"model"`           // 实际使用的模型
}

// turn 一轮推理的中间状态
type turn struct {
	mode     string
	start    time.Time
	conv     *model.Conversation
	plan     *TurnPlan
	resolved *ResolvedModel
	messages []llm.Message
	userMsg  *model.Message
	release  func()
}

// Invoke 阻塞式发送消息并获取 AI 回复
// 参数:
//   - ctx: 上下文
//   - userID: 当前用户
//   - req: 发送请求
//
// 返回:
//   - *SendResponse: AI 回复
//   - error: 解析失败时未写入任何消息；调用失败时用户消息已被删除
func (s *ChatService) Invoke(ctx context.Context, userID int64, req *SendRequest) (*SendResponse, error) {
	t, err := s.begin(ctx, metrics.ModeInvoke, userID, req)
	if err != nil {
		return nil, err
	}
	defer t.release()

	callCtx, cancel := withTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	reply, err := t.resolved.Client.Chat(callCtx, t.messages)
	if err != nil {
		return nil, s.fail(ctx, t, ErrInferenceFailed, errors.Wrap(err, "provider chat"))
	}

	aiMsg, err := s.saveReply(ctx, t, reply)
	if err != nil {
		return nil, s.fail(ctx, t, ErrInferenceFailed, err)
	}
	s.metrics.Attempt(t.mode, metrics.OutcomeSuccess, time.Since(t.start))

	return &SendResponse{
		MessageID:      aiMsg.ID,
		ReplyID:        t.userMsg.ID,
		Content:        reply,
		ConversationID: t.conv.ID,
		Model:          t.resolved.Model,
	}, nil
}

// Stream 流式发送消息
// 返回的 ReplyStream 由调用方逐段读取，读取结束后通过 Outcome 获取最终结果
func (s *ChatService) Stream(ctx context.Context, userID int64, req *SendRequest) (*ReplyStream, error) {
	t, err := s.begin(ctx, metrics.ModeStream, userID, req)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := withTimeout(ctx, s.cfg.StreamTimeout)
	upstream, err := t.resolved.Client.ChatStream(streamCtx, t.messages)
	if err != nil {
		cancel()
		defer t.release()
		return nil, s.fail(ctx, t, ErrInferenceFailed, errors.Wrap(err, "provider open stream"))
	}

	return newReplyStream(s, t, streamCtx, cancel, upstream), nil
}

// begin 完成校验、加锁、解析和用户消息写入
// 返回错误时不会留下任何消息，也不持有对话锁
func (s *ChatService) begin(ctx context.Context, mode string, userID int64, req *SendRequest) (*turn, error) {
	t := &turn{mode: mode, start: time.Now(), release: func() {}}

	conv, err := s.authorize(ctx, userID, req.ConversationID)
	if err != nil {
		s.metrics.Attempt(mode, metrics.OutcomeRejected, time.Since(t.start))
		return nil, err
	}
	t.conv = conv

	release, err := s.acquire(ctx, conv.ID)
	if err != nil {
		s.metrics.Attempt(mode, metrics.OutcomeRejected, time.Since(t.start))
		return nil, err
	}

	if err := s.prepare(ctx, t, userID, req); err != nil {
		release()
		s.metrics.Attempt(mode, metrics.OutcomeRejected, time.Since(t.start))
		slog.Warn("推理准备失败", "conversation_id", conv.ID, "mode", mode, "error", err)
		return nil, err
	}

	userMsg := &model.Message{
		ConversationID: conv.ID,
		UserID:         userID,
		RoleID:         t.plan.RoleID,
		Type:           model.MessageTypeUser,
		Model:          t.resolved.Model,
		ModelID:        t.resolved.ModelID,
		Content:        req.Content,
		UseContext:     req.UseContext,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		release()
		s.metrics.Attempt(mode, metrics.OutcomeRejected, time.Since(t.start))
		return nil, errors.Wrap(err, "save user message")
	}
	t.userMsg = userMsg
	t.release = release

	slog.Info("开始调用模型",
		"conversation_id", conv.ID,
		"message_id", userMsg.ID,
		"model", t.resolved.Model,
		"mode", mode,
		"history", len(t.messages)-1,
	)
	return t, nil
}

// prepare 解析生效配置，组装上下文并解析模型
// 上下文在写入用户消息之前读取，本轮消息不会重复出现在历史里
func (s *ChatService) prepare(ctx context.Context, t *turn, userID int64, req *SendRequest) error {
	plan, err := s.assembler.Plan(ctx, userID, t.conv, req.RoleID)
	if err != nil {
		return err
	}
	t.plan = plan

	assembly, err := s.assembler.Assemble(ctx, AssembleRequest{
		ConversationID: t.conv.ID,
		SystemPrompt:   plan.SystemPrompt,
		Content:        req.Content,
		UseContext:     req.UseContext,
		MaxContexts:    plan.MaxContexts,
	})
	if err != nil {
		return err
	}
	t.messages = assembly.Messages

	resolved, err := s.resolver.Resolve(ctx, plan.ModelID, conversationOverrides(t.conv))
	if err != nil {
		return err
	}
	t.resolved = resolved
	return nil
}

// RememberRequest 自动记忆模式的请求，不需要显式传入上下文
type RememberRequest struct {
	ConversationID int64  `json:"conversation_id" binding:"required"` // 对话编号
	Content        string `json:"content" binding:"required"`         // 消息内容
	Language       string `json:"language"`                           // 回答语言，默认取配置
}

// Remember 使用会话历史缓存作为上下文发送消息
// 同一对话的多轮调用共享缓存，缓存首次访问时从已保存的消息重建
func (s *ChatService) Remember(ctx context.Context, userID int64, req *RememberRequest) (*SendResponse, error) {
	t := &turn{mode: metrics.ModeRemember, start: time.Now(), release: func() {}}
	reject := func(err error) (*SendResponse, error) {
		s.metrics.Attempt(t.mode, metrics.OutcomeRejected, time.Since(t.start))
		return nil, err
	}

	conv, err := s.authorize(ctx, userID, req.ConversationID)
	if err != nil {
		return reject(err)
	}
	t.conv = conv

	release, err := s.acquire(ctx, conv.ID)
	if err != nil {
		return reject(err)
	}
	defer release()

	unlock := s.history.Lock(conv.ID)
	defer unlock()

	buffer, err := s.history.Load(ctx, conv.ID)
	if err != nil {
		return reject(errors.Wrapf(err, "load history of conversation %d", conv.ID))
	}

	resolved, err := s.resolver.Resolve(ctx, conv.ModelID, conversationOverrides(conv))
	if err != nil {
		return reject(err)
	}
	t.resolved = resolved

	language := req.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}
	userTurn := llm.Message{Role: llm.RoleUser, Content: req.Content}
	t.messages = make([]llm.Message, 0, len(buffer)+2)
	t.messages = append(t.messages, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(rememberPrompt, language)})
	t.messages = append(t.messages, buffer...)
	t.messages = append(t.messages, userTurn)

	userMsg := &model.Message{
		ConversationID: conv.ID,
		UserID:         userID,
		RoleID:         conv.RoleID,
		Type:           model.MessageTypeUser,
		Model:          resolved.Model,
		ModelID:        resolved.ModelID,
		Content:        req.Content,
		UseContext:     true,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return reject(errors.Wrap(err, "save user message"))
	}
	t.userMsg = userMsg

	callCtx, cancel := withTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	reply, err := resolved.Client.Chat(callCtx, t.messages)
	if err != nil {
		return nil, s.fail(ctx, t, ErrInferenceFailed, errors.Wrap(err, "provider chat"))
	}

	aiMsg, err := s.saveReply(ctx, t, reply)
	if err != nil {
		return nil, s.fail(ctx, t, ErrInferenceFailed, err)
	}

	s.history.Append(conv.ID, userTurn, llm.Message{Role: llm.RoleAssistant, Content: reply})
	s.metrics.Attempt(t.mode, metrics.OutcomeSuccess, time.Since(t.start))

	return &SendResponse{
		MessageID:      aiMsg.ID,
		ReplyID:        userMsg.ID,
		Content:        reply,
		ConversationID: conv.ID,
		Model:          resolved.Model,
	}, nil
}

// authorize 校验对话存在且属于当前用户
func (s *ChatService) authorize(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	return ownedConversation(ctx, s.conversations, userID, conversationID)
}

// acquire 获取对话锁，未配置 locker 时直接放行
func (s *ChatService) acquire(ctx context.Context, conversationID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	ttl := s.cfg.StreamTimeout
	if ttl <= 0 {
		ttl = defaultTurnTTL
	}
	token, ok, err := s.locker.AcquireTurn(ctx, conversationID, ttl)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire turn lock of conversation %d", conversationID)
	}
	if !ok {
		return nil, ErrConversationBusy
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
		defer cancel()
		if err := s.locker.ReleaseTurn(releaseCtx, conversationID, token); err != nil {
			slog.Warn("释放对话锁失败", "conversation_id", conversationID, "error", err)
		}
	}, nil
}

// saveReply 保存 AI 回复，reply_id 指向本轮的用户消息
func (s *ChatService) saveReply(ctx context.Context, t *turn, content string) (*model.Message, error) {
	replyID := t.userMsg.ID
	aiMsg := &model.Message{
		ConversationID: t.conv.ID,
		ReplyID:        &replyID,
		UserID:         t.userMsg.UserID,
		RoleID:         t.userMsg.RoleID,
		Type:           model.MessageTypeAssistant,
		Model:          t.resolved.Model,
		ModelID:        t.resolved.ModelID,
		Content:        content,
		UseContext:     t.userMsg.UseContext,
	}
	if err := s.messages.Create(context.WithoutCancel(ctx), aiMsg); err != nil {
		return nil, errors.Wrap(err, "save assistant message")
	}
	return aiMsg, nil
}

// fail 补偿删除用户消息并返回带类型的错误
// 补偿失败只记录日志，返回的始终是原始错误
func (s *ChatService) fail(ctx context.Context, t *turn, kind, cause error) error {
	s.compensate(ctx, t)
	s.metrics.Attempt(t.mode, metrics.OutcomeFailed, time.Since(t.start))
	slog.Error("模型调用失败",
		"conversation_id", t.conv.ID,
		"message_id", t.userMsg.ID,
		"model", t.resolved.Model,
		"mode", t.mode,
		"error", cause,
	)
	return newInferenceError(kind, cause)
}

// compensate 硬删除本轮的用户消息，之后的上下文窗口里不会再出现它
func (s *ChatService) compensate(ctx context.Context, t *turn) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	err := s.messages.HardDelete(deleteCtx, t.userMsg.ID)
	s.metrics.Compensation(t.mode, err)
	if err != nil {
		slog.Error("删除失败轮次的用户消息失败",
			"conversation_id", t.conv.ID,
			"message_id", t.userMsg.ID,
			"error", err,
		)
	}
}

// conversationOverrides 对话上保存的温度和最大 Token 作为单次覆盖
func conversationOverrides(conv *model.Conversation) Overrides {
	// 温度为 0 也是有效取值；MaxTokens 为 0 视为未设置
	temperature := conv.Temperature
	o := Overrides{Temperature: &temperature}
	if conv.MaxTokens > 0 {
		maxTokens := conv.MaxTokens
		o.MaxTokens = &maxTokens
	}
	return o
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// NewHistoryLoader 返回从已保存消息重建会话历史的 Loader
// 最多读取 limit 条最新消息
func NewHistoryLoader(messages MessageStore, limit int) history.Loader {
	return func(ctx context.Context, conversationID int64) ([]llm.Message, error) {
		window, err := messages.Window(ctx, conversationID, limit)
		if err != nil {
			return nil, err
		}
		return toProviderMessages(window), nil
	}
}
