package service

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/config"
	"github.com/chongxue30/stu-agent/internal/history"
	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
)

const defaultConversationTitle = "新对话"

// ConversationService 对话管理服务
type ConversationService struct {
	convRepo *repository.ConversationRepository
	messages MessageStore
	models   ModelStore
	personas PersonaStore
	history  *history.Store
	cfg      config.AIConfig
}

// NewConversationService 创建 ConversationService 实例
func NewConversationService(
	convRepo *repository.ConversationRepository,
	messages MessageStore,
	models ModelStore,
	personas PersonaStore,
	store *history.Store,
	cfg config.AIConfig,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		messages: messages,
		models:   models,
		personas: personas,
		history:  store,
		cfg:      cfg,
	}
}

// CreateConversationRequest 创建对话请求
type CreateConversationRequest struct {
	ModelID       int64    `json:"model_id" binding:"required"`                   // 模型编号
	RoleID        *int64   `json:"role_id"`                                       // 角色编号，可选
	Title         string   `json:"title" binding:"max=256"`                       // 标题，默认"新对话"
	SystemMessage string   `json:"system_message" binding:"max=1024"`             // 系统提示
	Temperature   *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`   // 温度
	MaxTokens     *int     `json:"max_tokens" binding:"omitempty,min=1"`          // 单条回复最大 Token
	MaxContexts   *int     `json:"max_contexts" binding:"omitempty,min=0,max=200"` // 上下文条数
}

// Create 创建对话
// 未指定的参数依次取模型配置和全局默认值
// 参数:
//   - ctx: 上下文
//   - userID: 当前用户
//   - req: 创建请求
//
// 返回:
//   - *model.Conversation: 新建的对话
//   - error: 模型不可用返回 ErrModelUnavailable，角色不可用返回 ErrPersonaNotFound
func (s *ConversationService) Create(ctx context.Context, userID int64, req *CreateConversationRequest) (*model.Conversation, error) {
	// 1. 检查模型
	m, err := s.models.GetByID(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	if !m.Usable() {
		return nil, ErrModelUnavailable
	}

	// 2. 检查角色
	if req.RoleID != nil {
		if _, err := s.visiblePersona(ctx, userID, *req.RoleID); err != nil {
			return nil, err
		}
	}

	// 3. 填充默认值
	conv := &model.Conversation{
		UserID:        userID,
		RoleID:        req.RoleID,
		Title:         req.Title,
		ModelID:       m.ID,
		Model:         m.Model,
		SystemMessage: req.SystemMessage,
		Temperature:   s.cfg.DefaultTemperature,
		MaxTokens:     s.cfg.DefaultMaxTokens,
		MaxContexts:   s.cfg.DefaultMaxContexts,
	}
	if conv.Title == "" {
		conv.Title = defaultConversationTitle
	}
	if m.Temperature != nil {
		conv.Temperature = *m.Temperature
	}
	if m.MaxTokens != nil {
		conv.MaxTokens = *m.MaxTokens
	}
	if m.MaxContexts != nil {
		conv.MaxContexts = *m.MaxContexts
	}
	if req.Temperature != nil {
		conv.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		conv.MaxTokens = *req.MaxTokens
	}
	if req.MaxContexts != nil {
		conv.MaxContexts = *req.MaxContexts
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	slog.Info("创建对话", "conversation_id", conv.ID, "user_id", userID, "model", conv.Model)
	return conv, nil
}

// UpdateConversationRequest 更新对话请求，只更新非 nil 字段
type UpdateConversationRequest struct {
	ID            int64    `json:"id" binding:"required"`
	Title         *string  `json:"title" binding:"omitempty,max=256"`
	RoleID        *int64   `json:"role_id"`
	ModelID       *int64   `json:"model_id"`
	SystemMessage *string  `json:"system_message" binding:"omitempty,max=1024"`
	Temperature   *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	MaxTokens     *int     `json:"max_tokens" binding:"omitempty,min=1"`
	MaxContexts   *int     `json:"max_contexts" binding:"omitempty,min=0,max=200"`
}

// Update 更新对话
func (s *ConversationService) Update(ctx context.Context, userID int64, req *UpdateConversationRequest) (*model.Conversation, error) {
	conv, err := ownedConversation(ctx, s.convRepo, userID, req.ID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.RoleID != nil {
		if _, err := s.visiblePersona(ctx, userID, *req.RoleID); err != nil {
			return nil, err
		}
		fields["role_id"] = *req.RoleID
	}
	if req.ModelID != nil && *req.ModelID != conv.ModelID {
		m, err := s.models.GetByID(ctx, *req.ModelID)
		if err != nil {
			return nil, err
		}
		if !m.Usable() {
			return nil, ErrModelUnavailable
		}
		fields["model_id"] = m.ID
		fields["model"] = m.Model
	}
	if req.SystemMessage != nil {
		fields["system_message"] = *req.SystemMessage
	}
	if req.Temperature != nil {
		fields["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		fields["max_tokens"] = *req.MaxTokens
	}
	if req.MaxContexts != nil {
		fields["max_contexts"] = *req.MaxContexts
	}

	if len(fields) == 0 {
		return conv, nil
	}
	if err := s.convRepo.UpdateFields(ctx, conv.ID, fields); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conv.ID)
}

// Delete 软删除对话，同时丢弃该对话的会话历史缓存
func (s *ConversationService) Delete(ctx context.Context, userID, id int64) error {
	ok, err := s.convRepo.SoftDeleteByUser(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConversationNotFound
	}
	s.history.Reset(id)
	return nil
}

// Get 获取对话详情
func (s *ConversationService) Get(ctx context.Context, userID, id int64) (*model.Conversation, error) {
	return ownedConversation(ctx, s.convRepo, userID, id)
}

// ConversationItem 对话列表项
type ConversationItem struct {
	model.Conversation
	MessageCount int64 `json:"message_count"`
}

// List 获取当前用户的对话列表，置顶的在前
func (s *ConversationService) List(ctx context.Context, userID int64) ([]ConversationItem, error) {
	convs, err := s.convRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	counts, err := s.messages.CountByConversationIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ConversationItem, 0, len(convs))
	for _, c := range convs {
		items = append(items, ConversationItem{Conversation: c, MessageCount: counts[c.ID]})
	}
	return items, nil
}

// TogglePin 切换置顶状态，返回切换后的状态
func (s *ConversationService) TogglePin(ctx context.Context, userID, id int64) (bool, error) {
	conv, err := ownedConversation(ctx, s.convRepo, userID, id)
	if err != nil {
		return false, err
	}
	pinned := !conv.Pinned
	if err := s.convRepo.SetPinned(ctx, conv.ID, pinned); err != nil {
		return false, err
	}
	return pinned, nil
}

// visiblePersona 角色存在、启用，并且是公开的或属于当前用户
func (s *ConversationService) visiblePersona(ctx context.Context, userID, roleID int64) (*model.ChatRole, error) {
	role, err := s.personas.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil || role.Status != model.StatusEnabled || !(role.PublicStatus || role.OwnedBy(userID)) {
		return nil, ErrPersonaNotFound
	}
	return role, nil
}

// ownedConversation 读取对话并校验归属
func ownedConversation(ctx context.Context, store ConversationStore, userID, id int64) (*model.Conversation, error) {
	conv, err := store.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load conversation %d", id)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.UserID != userID {
		return nil, ErrConversationForbidden
	}
	return conv, nil
}
