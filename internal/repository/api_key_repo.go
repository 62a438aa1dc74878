package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chongxue30/stu-agent/internal/model"
)

// APIKeyRepository 平台密钥数据访问层
type APIKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository 创建 APIKeyRepository 实例
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create 创建密钥
func (r *APIKeyRepository) Create(ctx context.Context, key *model.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

// GetByID 根据 ID 获取密钥，未找到或已删除返回 nil
func (r *APIKeyRepository) GetByID(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&key, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

// List 获取全部未删除的密钥
func (r *APIKeyRepository) List(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := r.db.WithContext(ctx).Where("deleted = ?", false).Order("id ASC").Find(&keys).Error
	return keys, err
}

// UpdateFields 更新密钥的指定字段
func (r *APIKeyRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.APIKey{}).Where("id = ?", id).Updates(fields).Error
}
