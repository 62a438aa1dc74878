package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chongxue30/stu-agent/internal/model"
)

// ChatRoleRepository 聊天角色数据访问层
type ChatRoleRepository struct {
	db *gorm.DB
}

// NewChatRoleRepository 创建 ChatRoleRepository 实例
func NewChatRoleRepository(db *gorm.DB) *ChatRoleRepository {
	return &ChatRoleRepository{db: db}
}

// Create 创建聊天角色
func (r *ChatRoleRepository) Create(ctx context.Context, role *model.ChatRole) error {
	return r.db.WithContext(ctx).Create(role).Error
}

// GetByID 根据 ID 获取角色，未找到或已删除返回 nil
// 参数:
//   - ctx: 上下文
//   - id: 角色编号
//
// 返回:
//   - *model.ChatRole: 角色，未找到返回 nil
//   - error: 数据库错误
func (r *ChatRoleRepository) GetByID(ctx context.Context, id int64) (*model.ChatRole, error) {
	var role model.ChatRole
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&role, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// UpdateFields 更新角色的指定字段
func (r *ChatRoleRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.ChatRole{}).Where("id = ?", id).Updates(fields).Error
}

// SoftDelete 软删除角色
func (r *ChatRoleRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.ChatRole{}).Where("id = ?", id).Update("deleted", true).Error
}

// ListVisible 获取用户可见的启用角色
// 包括公开角色和用户自己创建的角色，可按类别过滤
func (r *ChatRoleRepository) ListVisible(ctx context.Context, userID int64, category string) ([]model.ChatRole, error) {
	var roles []model.ChatRole
	query := r.db.WithContext(ctx).
		Where("deleted = ? AND status = ?", false, model.StatusEnabled).
		Where("public_status = ? OR user_id = ?", true, userID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	err := query.Order("sort ASC, id ASC").Find(&roles).Error
	return roles, err
}

// ListCategories 获取公开角色的类别列表（去重）
func (r *ChatRoleRepository) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).
		Model(&model.ChatRole{}).
		Where("deleted = ? AND status = ? AND public_status = ?", false, model.StatusEnabled, true).
		Where("category IS NOT NULL AND category <> ''").
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	return categories, err
}
