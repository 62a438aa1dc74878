package model

import (
	"time"
)

// AIModel 模型配置
// 对应数据库表 ai_model
// 把平台上的一个模型标识和调参默认值绑定到一个 API 密钥
type AIModel struct {
	// ID 模型编号
	ID int64 `gorm:"primaryKey" json:"id"`

	// KeyID 关联 ai_api_key.id
	KeyID int64 `gorm:"not null;index" json:"key_id"`

	// Name 展示名称
	Name string `gorm:"size:64;not null" json:"name"`

	// Model 平台侧的模型标识，如 deepseek-chat、glm-4
	// 为空时使用平台默认模型
	Model string `gorm:"size:64;not null" json:"model"`

	// Platform 模型平台：deepseek / zhipu / tongyi / openai / custom
	Platform string `gorm:"size:32;not null" json:"platform"`

	// Type 模型类型，1 为对话模型
	Type int `gorm:"not null;default:1" json:"type"`

	// Sort 排序值，越小越靠前
	Sort int `gorm:"not null;default:0" json:"sort"`

	// Status 1 启用，0 禁用
	Status int8 `gorm:"not null;default:1" json:"status"`

	// 调参默认值，可以被对话或单次请求覆盖
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	MaxContexts *int     `json:"max_contexts,omitempty"`

	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`

	// Deleted 软删除标记
	Deleted bool `gorm:"not null;default:false;index" json:"-"`
}

// TableName 指定表名
func (AIModel) TableName() string {
	return "ai_model"
}

// Usable 模型是否可以被调用
func (m *AIModel) Usable() bool {
	return m != nil && !m.Deleted && m.Status == StatusEnabled
}
