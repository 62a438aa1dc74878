package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/llm"
)

// Overrides 单次调用的参数覆盖，非 nil 时优先于模型配置的默认值
type Overrides struct {
	Temperature *float64
	MaxTokens   *int
}

// ResolvedModel 解析完成、可以直接调用的模型
type ResolvedModel struct {
	Client      llm.Client
	ModelID     int64
	Model       string // 实际调用的模型名，记录到消息上
	Platform    llm.Platform
	Temperature float64
	MaxTokens   int
	MaxContexts int // 模型配置的上下文条数，未设置为 0
}

// ModelResolver 把模型编号解析为可调用的客户端
// 每次调用都重新读取配置，不做缓存
type ModelResolver struct {
	models  ModelStore
	keys    CredentialStore
	factory llm.Factory
}

// NewModelResolver 创建 ModelResolver 实例
// factory 为 nil 时使用 llm.NewClient
func NewModelResolver(models ModelStore, keys CredentialStore, factory llm.Factory) *ModelResolver {
	if factory == nil {
		factory = llm.NewClient
	}
	return &ModelResolver{
		models:  models,
		keys:    keys,
		factory: factory,
	}
}

// Resolve 解析模型
// 参数:
//   - ctx: 上下文
//   - modelID: 模型编号
//   - o: 单次调用的参数覆盖
//
// 返回:
//   - *ResolvedModel: 绑定了密钥、地址和参数的客户端
//   - error: ErrModelUnavailable / ErrCredentialUnavailable / ErrPlatformConfigIncomplete
func (r *ModelResolver) Resolve(ctx context.Context, modelID int64, o Overrides) (*ResolvedModel, error) {
	// 1. 模型配置
	m, err := r.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %d", modelID)
	}
	if !m.Usable() {
		return nil, newInferenceError(ErrModelUnavailable, errors.Errorf("model %d is missing or disabled", modelID))
	}

	// 2. 密钥
	key, err := r.keys.GetByID(ctx, m.KeyID)
	if err != nil {
		return nil, errors.Wrapf(err, "load api key %d", m.KeyID)
	}
	if !key.Usable() || strings.TrimSpace(key.APIKey) == "" {
		return nil, newInferenceError(ErrCredentialUnavailable, errors.Errorf("api key %d of model %d is missing or disabled", m.KeyID, modelID))
	}

	// 3. 平台默认值，显式配置优先
	explicitURL := ""
	if key.URL != nil {
		explicitURL = *key.URL
	}
	endpoint, err := llm.ResolveEndpoint(m.Platform, explicitURL, m.Model)
	if err != nil {
		return nil, newInferenceError(ErrPlatformConfigIncomplete, err)
	}

	// 4. 参数
	resolved := &ResolvedModel{
		ModelID:  m.ID,
		Model:    endpoint.Model,
		Platform: endpoint.Platform,
	}
	if m.Temperature != nil {
		resolved.Temperature = *m.Temperature
	}
	if m.MaxTokens != nil {
		resolved.MaxTokens = *m.MaxTokens
	}
	if m.MaxContexts != nil {
		resolved.MaxContexts = *m.MaxContexts
	}
	if o.Temperature != nil {
		resolved.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		resolved.MaxTokens = *o.MaxTokens
	}

	client, err := r.factory(llm.Config{
		Platform:    endpoint.Platform,
		BaseURL:     endpoint.BaseURL,
		Model:       endpoint.Model,
		APIKey:      key.APIKey,
		Temperature: float32(resolved.Temperature),
		MaxTokens:   resolved.MaxTokens,
	})
	if err != nil {
		return nil, newInferenceError(ErrPlatformConfigIncomplete, errors.Wrap(err, "build client"))
	}
	resolved.Client = client

	return resolved, nil
}
