package model

import (
	"time"
)

// Conversation 聊天对话
// 对应数据库表 ai_chat_conversation
// 只做软删除
type Conversation struct {
	// ID 对话编号
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 对话所有者
	UserID int64 `gorm:"not null;index" json:"user_id"`

	// RoleID 绑定的聊天角色，可选
	RoleID *int64 `json:"role_id,omitempty"`

	// Title 对话标题
	Title string `gorm:"size:256;not null" json:"title"`

	// ModelID 模型编号
	ModelID int64 `gorm:"not null" json:"model_id"`

	// Model 创建时的模型标识快照
	Model string `gorm:"size:64;not null" json:"model"`

	// Pinned 是否置顶
	Pinned bool `gorm:"not null;default:false" json:"pinned"`

	// PinnedTime 置顶时间，取消置顶后清空
	PinnedTime *time.Time `json:"pinned_time,omitempty"`

	// SystemMessage 对话级角色设定，会被聊天角色覆盖
	SystemMessage string `gorm:"size:1024" json:"system_message"`

	// Temperature 温度参数
	Temperature float64 `gorm:"not null" json:"temperature"`

	// MaxTokens 单条回复的最大 Token 数量
	MaxTokens int `gorm:"not null" json:"max_tokens"`

	// MaxContexts 上下文的最大 Message 数量
	MaxContexts int `gorm:"not null" json:"max_contexts"`

	CreateTime time.Time `gorm:"autoCreateTime;index" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
	Deleted    bool      `gorm:"not null;default:false;index" json:"-"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "ai_chat_conversation"
}
