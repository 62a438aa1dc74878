package service

import (
	"context"
	"time"

	"github.com/chongxue30/stu-agent/internal/model"
)

// 推理链路依赖的存储接口，由 repository 包实现
// 所有读取都隐式过滤软删除的记录，未找到时返回 (nil, nil)

// ConversationStore 对话读取
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
}

// MessageStore 消息读写
type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// Window 返回最新的 limit 条消息，最新的在前
	Window(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	ListByConversationID(ctx context.Context, conversationID int64) ([]model.Message, error)
	CountByConversationIDs(ctx context.Context, conversationIDs []int64) (map[int64]int64, error)
	HardDelete(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
}

// ModelStore 模型配置读取
type ModelStore interface {
	GetByID(ctx context.Context, id int64) (*model.AIModel, error)
}

// CredentialStore API 密钥读取
type CredentialStore interface {
	GetByID(ctx context.Context, id int64) (*model.APIKey, error)
}

// PersonaStore 角色读取
type PersonaStore interface {
	GetByID(ctx context.Context, id int64) (*model.ChatRole, error)
}

// TurnLocker 对话级别的互斥锁，同一对话同一时间只允许一轮推理
type TurnLocker interface {
	AcquireTurn(ctx context.Context, conversationID int64, ttl time.Duration) (token string, ok bool, err error)
	ReleaseTurn(ctx context.Context, conversationID int64, token string) error
}

// UserStore 用户读写
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}
