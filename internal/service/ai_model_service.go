package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
)

// ErrUnknownPlatform 平台不在支持列表中且未提供地址
var ErrUnknownPlatform = errors.New("未知的模型平台，请填写接口地址")

// AIModelService 模型与 API 密钥管理
type AIModelService struct {
	modelRepo *repository.AIModelRepository
	keyRepo   *repository.APIKeyRepository
}

// NewAIModelService 创建 AIModelService 实例
func NewAIModelService(modelRepo *repository.AIModelRepository, keyRepo *repository.APIKeyRepository) *AIModelService {
	return &AIModelService{modelRepo: modelRepo, keyRepo: keyRepo}
}

// ModelItem 模型精简信息，不包含任何密钥数据
type ModelItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Platform string `json:"platform"`
}

// SimpleList 获取启用的模型列表
func (s *AIModelService) SimpleList(ctx context.Context) ([]ModelItem, error) {
	models, err := s.modelRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ModelItem, 0, len(models))
	for _, m := range models {
		items = append(items, ModelItem{ID: m.ID, Name: m.Name, Model: m.Model, Platform: m.Platform})
	}
	return items, nil
}

// CreateModelRequest 创建模型请求
type CreateModelRequest struct {
	KeyID       int64    `json:"key_id" binding:"required"`
	Name        string   `json:"name" binding:"required,max=64"`
	Model       string   `json:"model" binding:"max=64"` // 为空时取平台默认模型
	Platform    string   `json:"platform" binding:"required,max=32"`
	Sort        int      `json:"sort"`
	Temperature *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,min=1"`
	MaxContexts *int     `json:"max_contexts" binding:"omitempty,min=0,max=200"`
}

// CreateModel 创建模型，平台名会被规范化
func (s *AIModelService) CreateModel(ctx context.Context, req *CreateModelRequest) (*model.AIModel, error) {
	key, err := s.keyRepo.GetByID(ctx, req.KeyID)
	if err != nil {
		return nil, err
	}
	if !key.Usable() {
		return nil, ErrCredentialUnavailable
	}

	platform, known := llm.ParsePlatform(req.Platform)
	if !known && (key.URL == nil || *key.URL == "") {
		return nil, ErrUnknownPlatform
	}

	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		explicitURL := ""
		if key.URL != nil {
			explicitURL = *key.URL
		}
		endpoint, err := llm.ResolveEndpoint(string(platform), explicitURL, "")
		if err != nil {
			return nil, ErrPlatformConfigIncomplete
		}
		modelName = endpoint.Model
	}

	m := &model.AIModel{
		KeyID:       key.ID,
		Name:        req.Name,
		Model:       modelName,
		Platform:    string(platform),
		Sort:        req.Sort,
		Status:      model.StatusEnabled,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		MaxContexts: req.MaxContexts,
	}
	if err := s.modelRepo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAPIKeyRequest 创建密钥请求
type CreateAPIKeyRequest struct {
	Name     string  `json:"name" binding:"required,max=255"`
	APIKey   string  `json:"api_key" binding:"required"`
	Platform string  `json:"platform" binding:"required,max=255"`
	URL      *string `json:"url" binding:"omitempty,url"`
}

// APIKeyItem 密钥精简信息，密钥打码显示
type APIKeyItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Platform string  `json:"platform"`
	URL      *string `json:"url,omitempty"`
	Masked   string  `json:"api_key"`
	Status   int8    `json:"status"`
}

func toAPIKeyItem(k *model.APIKey) APIKeyItem {
	return APIKeyItem{
		ID:       k.ID,
		Name:     k.Name,
		Platform: k.Platform,
		URL:      k.URL,
		Masked:   k.MaskedKey(),
		Status:   k.Status,
	}
}

// CreateAPIKey 保存密钥
func (s *AIModelService) CreateAPIKey(ctx context.Context, req *CreateAPIKeyRequest) (*APIKeyItem, error) {
	platform, _ := llm.ParsePlatform(req.Platform)
	key := &model.APIKey{
		Name:     req.Name,
		APIKey:   strings.TrimSpace(req.APIKey),
		Platform: string(platform),
		URL:      req.URL,
		Status:   model.StatusEnabled,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}
	item := toAPIKeyItem(key)
	return &item, nil
}

// ListAPIKeys 获取密钥列表
func (s *AIModelService) ListAPIKeys(ctx context.Context) ([]APIKeyItem, error) {
	keys, err := s.keyRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]APIKeyItem, 0, len(keys))
	for i := range keys {
		items = append(items, toAPIKeyItem(&keys[i]))
	}
	return items, nil
}
