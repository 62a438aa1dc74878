package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chongxue30/stu-agent/internal/model"
)

// ConversationRepository 对话数据访问层
// 对话只做软删除
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建 ConversationRepository 实例
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建新对话
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetByID 根据 ID 获取对话
// 参数:
//   - ctx: 上下文
//   - id: 对话编号
//
// 返回:
//   - *model.Conversation: 对话，未找到或已删除返回 nil
//   - error: 数据库错误
func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUserID 获取用户的对话列表
// 置顶的在前，其余按创建时间倒序
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("pinned DESC, create_time DESC, id DESC").
		Find(&convs).Error
	return convs, err
}

// UpdateFields 更新对话的指定字段
func (r *ConversationRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(fields).Error
}

// SoftDeleteByUser 软删除属于指定用户的对话
// 返回:
//   - bool: 是否有记录被删除（不存在或不属于该用户时为 false）
//   - error: 数据库错误
func (r *ConversationRepository) SoftDeleteByUser(ctx context.Context, id, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND user_id = ? AND deleted = ?", id, userID, false).
		Update("deleted", true)
	return result.RowsAffected > 0, result.Error
}

// SetPinned 设置置顶状态
// 置顶时记录置顶时间，取消置顶时清空
func (r *ConversationRepository) SetPinned(ctx context.Context, id int64, pinned bool) error {
	fields := map[string]interface{}{
		"pinned":      pinned,
		"pinned_time": nil,
	}
	if pinned {
		fields["pinned_time"] = time.Now()
	}
	return r.UpdateFields(ctx, id, fields)
}
