package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/model"
)

// 消息相关错误
var (
	ErrMessageNotFound  = errors.New("消息不存在")
	ErrMessageForbidden = errors.New("无权限删除此消息")
)

// MessageService 消息查询与删除
type MessageService struct {
	conversations ConversationStore
	messages      MessageStore
}

// NewMessageService 创建 MessageService 实例
func NewMessageService(conversations ConversationStore, messages MessageStore) *MessageService {
	return &MessageService{conversations: conversations, messages: messages}
}

// List 获取对话的消息列表，按时间正序
func (s *MessageService) List(ctx context.Context, userID, conversationID int64) ([]model.Message, error) {
	if _, err := ownedConversation(ctx, s.conversations, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversationID(ctx, conversationID)
}

// Delete 软删除消息
// 软删除的消息不会再出现在上下文窗口里
func (s *MessageService) Delete(ctx context.Context, userID, id int64) error {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.UserID != userID {
		return ErrMessageForbidden
	}
	return s.messages.SoftDelete(ctx, id)
}
