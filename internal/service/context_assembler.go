package service

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/model"
)

// TurnPlan 一轮对话生效的角色、模型和系统提示
type TurnPlan struct {
	Persona      *model.ChatRole // 未绑定角色时为 nil
	RoleID       *int64
	ModelID      int64
	SystemPrompt string
	MaxContexts  int // 上下文条数 N
}

// AssembleRequest 组装请求
type AssembleRequest struct {
	ConversationID int64
	SystemPrompt   string
	Content        string
	UseContext     bool
	MaxContexts    int
}

// Assembly 组装结果
type Assembly struct {
	Messages     []llm.Message
	HistoryCount int // 历史消息条数，不含系统提示和本轮用户消息
}

// ContextAssembler 构建发送给模型的消息序列
type ContextAssembler struct {
	messages           MessageStore
	personas           PersonaStore
	models             ModelStore
	defaultMaxContexts int
}

// NewContextAssembler 创建 ContextAssembler 实例
func NewContextAssembler(messages MessageStore, personas PersonaStore, models ModelStore, defaultMaxContexts int) *ContextAssembler {
	return &ContextAssembler{
		messages:           messages,
		personas:           personas,
		models:             models,
		defaultMaxContexts: defaultMaxContexts,
	}
}

// Plan 解析本轮生效的角色、模型、系统提示和上下文条数
// 角色优先取请求中的 roleID，其次是对话绑定的角色
// 角色的系统提示和模型优先于对话上的配置
// 参数:
//   - ctx: 上下文
//   - userID: 当前用户
//   - conv: 对话
//   - roleID: 请求指定的角色，可为 nil
//
// 返回:
//   - *TurnPlan: 生效配置
//   - error: 请求指定的角色不可用时返回 ErrPersonaNotFound
func (a *ContextAssembler) Plan(ctx context.Context, userID int64, conv *model.Conversation, roleID *int64) (*TurnPlan, error) {
	plan := &TurnPlan{
		ModelID:      conv.ModelID,
		SystemPrompt: conv.SystemMessage,
	}

	effectiveRoleID := roleID
	if effectiveRoleID == nil {
		effectiveRoleID = conv.RoleID
	}

	if effectiveRoleID != nil {
		persona, err := a.personas.GetByID(ctx, *effectiveRoleID)
		if err != nil {
			return nil, errors.Wrapf(err, "load persona %d", *effectiveRoleID)
		}
		usable := persona != nil && persona.Status == model.StatusEnabled &&
			(persona.PublicStatus || persona.OwnedBy(userID))
		switch {
		case usable:
			plan.Persona = persona
			plan.RoleID = &persona.ID
			if persona.SystemMessage != "" {
				plan.SystemPrompt = persona.SystemMessage
			}
			if persona.ModelID != nil {
				plan.ModelID = *persona.ModelID
			}
		case roleID != nil:
			return nil, ErrPersonaNotFound
		default:
			// 对话绑定的角色已被删除或禁用，按未绑定处理
			slog.Warn("对话绑定的角色不可用，忽略",
				"conversation_id", conv.ID, "role_id", *effectiveRoleID)
		}
	}

	limit, err := a.contextLimit(ctx, conv, plan.ModelID)
	if err != nil {
		return nil, err
	}
	plan.MaxContexts = limit

	return plan, nil
}

// contextLimit 对话设置优先，其次是模型设置，最后是全局默认值
func (a *ContextAssembler) contextLimit(ctx context.Context, conv *model.Conversation, modelID int64) (int, error) {
	if conv.MaxContexts > 0 {
		return conv.MaxContexts, nil
	}
	m, err := a.models.GetByID(ctx, modelID)
	if err != nil {
		return 0, errors.Wrapf(err, "load model %d", modelID)
	}
	if m != nil && m.MaxContexts != nil && *m.MaxContexts > 0 {
		return *m.MaxContexts, nil
	}
	return a.defaultMaxContexts, nil
}

// Assemble 组装消息序列: [系统提示?, 历史..., 本轮用户消息]
// 历史取最新的 MaxContexts 条并按时间正序排列
func (a *ContextAssembler) Assemble(ctx context.Context, req AssembleRequest) (*Assembly, error) {
	out := &Assembly{Messages: make([]llm.Message, 0, req.MaxContexts+2)}

	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, llm.Message{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}

	if req.UseContext && req.MaxContexts > 0 {
		window, err := a.messages.Window(ctx, req.ConversationID, req.MaxContexts)
		if err != nil {
			return nil, errors.Wrapf(err, "load context window of conversation %d", req.ConversationID)
		}
		history := toProviderMessages(window)
		out.HistoryCount = len(history)
		out.Messages = append(out.Messages, history...)
	}

	out.Messages = append(out.Messages, llm.Message{Role: llm.RoleUser, Content: req.Content})
	return out, nil
}

// toProviderMessages 把最新在前的消息窗口转换为按时间正序的模型消息
// 无法识别的消息类型直接丢弃
func toProviderMessages(newestFirst []model.Message) []llm.Message {
	out := make([]llm.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := newestFirst[i]
		role, ok := providerRole(msg.Type)
		if !ok {
			slog.Debug("丢弃无法识别类型的上下文消息",
				"conversation_id", msg.ConversationID, "message_id", msg.ID, "type", msg.Type)
			continue
		}
		out = append(out, llm.Message{Role: role, Content: msg.Content})
	}
	return out
}

func providerRole(messageType string) (string, bool) {
	switch messageType {
	case model.MessageTypeUser:
		return llm.RoleUser, true
	case model.MessageTypeAssistant:
		return llm.RoleAssistant, true
	case model.MessageTypeSystem:
		return llm.RoleSystem, true
	}
	return "", false
}
