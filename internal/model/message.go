package model

import (
	"time"

	"gorm.io/datatypes"
)

// MessageType 消息类型常量
const (
	MessageTypeUser      = "user"      // 用户消息
	MessageTypeAssistant = "assistant" // AI 回复
	MessageTypeSystem    = "system"    // 系统消息
)

// Message 聊天消息
// 对应数据库表 ai_chat_message
// user 消息先写入，推理成功后紧跟一条 reply_id 指向它的 assistant 消息
type Message struct {
	// ID 消息编号
	ID int64 `gorm:"primaryKey" json:"id"`

	// ConversationID 所属对话
	ConversationID int64 `gorm:"not null;index:idx_msg_conv_time,priority:1" json:"conversation_id"`

	// ReplyID assistant 消息回复的 user 消息编号
	ReplyID *int64 `gorm:"index" json:"reply_id,omitempty"`

	// UserID 发送用户
	UserID int64 `gorm:"not null" json:"user_id"`

	// RoleID 本轮使用的聊天角色
	RoleID *int64 `json:"role_id,omitempty"`

	// Type user / assistant / system
	Type string `gorm:"size:16;not null" json:"type"`

	// Model 本轮实际调用的模型标识
	Model string `gorm:"size:64;not null" json:"model"`

	// ModelID 本轮实际调用的模型编号
	ModelID int64 `gorm:"not null" json:"model_id"`

	// Content 消息内容
	Content string `gorm:"type:text;not null" json:"content"`

	// UseContext 本轮是否携带了上下文
	UseContext bool `gorm:"not null;default:false" json:"use_context"`

	// SegmentIDs 引用的知识段落编号
	SegmentIDs datatypes.JSONSlice[int64] `gorm:"size:2048" json:"segment_ids,omitempty"`

	CreateTime time.Time `gorm:"autoCreateTime;index:idx_msg_conv_time,priority:2" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
	Deleted    bool      `gorm:"not null;default:false;index" json:"-"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "ai_chat_message"
}

// All 返回需要自动迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&APIKey{},
		&AIModel{},
		&ChatRole{},
		&Conversation{},
		&Message{},
	}
}
