package model

import (
	"time"
)

// ChatRole 聊天角色
// 对应数据库表 ai_chat_role
// 绑定到对话后，可以覆盖对话的系统提示词和模型
type ChatRole struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 创建者，为空表示系统内置角色
	UserID *int64 `gorm:"index" json:"user_id,omitempty"`

	// ModelID 绑定的模型，为空时使用对话自己的模型
	ModelID *int64 `json:"model_id,omitempty"`

	Name        string `gorm:"size:128;not null" json:"name"`
	Avatar      string `gorm:"size:256;not null;default:''" json:"avatar"`
	Category    string `gorm:"size:32" json:"category"`
	Sort        int    `gorm:"not null;default:0" json:"sort"`
	Description string `gorm:"size:256;not null;default:''" json:"description"`

	// SystemMessage 角色设定，作为第一条 system 消息发送
	SystemMessage string `gorm:"size:1024" json:"system_message"`

	// PublicStatus 是否对所有用户可见
	PublicStatus bool `gorm:"not null;default:false" json:"public_status"`

	// Status 1 启用，0 禁用
	Status int8 `gorm:"not null;default:1" json:"status"`

	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
	Deleted    bool      `gorm:"not null;default:false;index" json:"-"`
}

// TableName 指定表名
func (ChatRole) TableName() string {
	return "ai_chat_role"
}

// OwnedBy 角色是否属于指定用户
func (r *ChatRole) OwnedBy(userID int64) bool {
	return r.UserID != nil && *r.UserID == userID
}
