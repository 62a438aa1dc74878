package model

import (
	"time"
)

// APIKey 平台密钥
// 对应数据库表 ai_api_key
// 密钥本身永远不会序列化给客户端
type APIKey struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	// Name 密钥名称，便于管理
	Name string `gorm:"size:255;not null" json:"name"`

	// APIKey 密钥明文
	APIKey string `gorm:"column:api_key;size:1024;not null" json:"-"`

	// Platform 所属平台
	Platform string `gorm:"size:255;not null" json:"platform"`

	// URL 自定义 API 地址，为空时使用平台默认地址
	URL *string `gorm:"size:255" json:"url,omitempty"`

	// Status 1 启用，0 禁用
	Status int8 `gorm:"not null;default:1" json:"status"`

	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
	Deleted    bool      `gorm:"not null;default:false;index" json:"-"`
}

// TableName 指定表名
func (APIKey) TableName() string {
	return "ai_api_key"
}

// Usable 密钥是否可以被使用
func (k *APIKey) Usable() bool {
	return k != nil && !k.Deleted && k.Status == StatusEnabled
}

// MaskedKey 返回打码后的密钥，只保留首尾各 4 位
func (k *APIKey) MaskedKey() string {
	if len(k.APIKey) <= 8 {
		return "****"
	}
	return k.APIKey[:4] + "****" + k.APIKey[len(k.APIKey)-4:]
}
