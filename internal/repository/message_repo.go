package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chongxue30/stu-agent/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作，每个写操作都是单条语句
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByID 根据 ID 获取消息，未找到或已删除返回 nil
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// Window 获取对话最新的 limit 条消息
// 按创建时间倒序返回（最新的在前），由调用方决定是否反转
// 参数:
//   - ctx: 上下文
//   - conversationID: 对话编号
//   - limit: 条数上限，<= 0 时直接返回空
//
// 返回:
//   - []model.Message: 消息列表（按时间倒序）
//   - error: 数据库错误
func (r *MessageRepository) Window(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	var messages []model.Message
	// 同一秒内写入的消息依赖自增 ID 排序
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("create_time DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// ListByConversationID 获取对话的全部消息，按时间正序
func (r *MessageRepository) ListByConversationID(ctx context.Context, conversationID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("create_time ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// HardDelete 物理删除消息
// 只用于推理失败后的补偿，被删除的消息不会再出现在任何上下文中
func (r *MessageRepository) HardDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&model.Message{}, id).Error
}

// SoftDelete 软删除消息
func (r *MessageRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Update("deleted", true).Error
}

// CountByConversationID 统计对话的未删除消息数量
func (r *MessageRepository) CountByConversationID(ctx context.Context, conversationID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Count(&count).Error
	return count, err
}

// CountByConversationIDs 批量统计多个对话的消息数量
// 返回:
//   - map[int64]int64: 对话编号 -> 消息数量，没有消息的对话不在 map 中
//   - error: 数据库错误
func (r *MessageRepository) CountByConversationIDs(ctx context.Context, conversationIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID int64
		Total          int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("conversation_id, COUNT(*) AS total").
		Where("conversation_id IN ? AND deleted = ?", conversationIDs, false).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Total
	}
	return counts, nil
}
