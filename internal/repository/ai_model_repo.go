package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chongxue30/stu-agent/internal/model"
)

// AIModelRepository 模型配置数据访问层
// 所有查询都会过滤软删除的记录
type AIModelRepository struct {
	db *gorm.DB
}

// NewAIModelRepository 创建 AIModelRepository 实例
func NewAIModelRepository(db *gorm.DB) *AIModelRepository {
	return &AIModelRepository{db: db}
}

// Create 创建模型配置
func (r *AIModelRepository) Create(ctx context.Context, m *model.AIModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID 根据 ID 获取模型配置
// 参数:
//   - ctx: 上下文
//   - id: 模型编号
//
// 返回:
//   - *model.AIModel: 模型配置，未找到或已删除返回 nil
//   - error: 数据库错误
func (r *AIModelRepository) GetByID(ctx context.Context, id int64) (*model.AIModel, error) {
	var m model.AIModel
	err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListEnabled 获取所有启用的模型，按 sort 升序
func (r *AIModelRepository) ListEnabled(ctx context.Context) ([]model.AIModel, error) {
	var models []model.AIModel
	err := r.db.WithContext(ctx).
		Where("deleted = ? AND status = ?", false, model.StatusEnabled).
		Order("sort ASC, id ASC").
		Find(&models).Error
	return models, err
}

// UpdateFields 更新模型配置的指定字段
// 管理端修改后下一轮对话立即生效，推理时每次都会重新读取
func (r *AIModelRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.AIModel{}).Where("id = ?", id).Updates(fields).Error
}
