package llm

import (
	"strings"

	"github.com/pkg/errors"
)

// Platform 支持的模型平台
type Platform string

const (
	PlatformDeepSeek Platform = "deepseek"
	PlatformZhipu    Platform = "zhipu"
	PlatformTongyi   Platform = "tongyi"
	PlatformOpenAI   Platform = "openai"
	// PlatformCustom 没有默认值，地址和模型都必须显式填写
	PlatformCustom Platform = "custom"
)

// ErrIncompleteEndpoint 平台默认值和保存的记录都无法提供地址或模型
var ErrIncompleteEndpoint = errors.New("platform endpoint is incomplete")

type platformDefaults struct {
	BaseURL string
	Model   string
}

var platformTable = map[Platform]platformDefaults{
	PlatformDeepSeek: {BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
	PlatformZhipu:    {BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4"},
	PlatformTongyi:   {BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-turbo"},
	PlatformOpenAI:   {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
}

var platformAliases = map[string]Platform{
	"dashscope": PlatformTongyi,
	"qwen":      PlatformTongyi,
	"bigmodel":  PlatformZhipu,
	"glm":       PlatformZhipu,
	"zai":       PlatformZhipu,
}

// ParsePlatform 将保存的平台名映射到支持的平台，支持别名
// 未知名称返回 PlatformCustom 和 false
func ParsePlatform(name string) (Platform, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := platformAliases[key]; ok {
		return alias, true
	}
	p := Platform(key)
	if _, ok := platformTable[p]; ok || p == PlatformCustom {
		return p, true
	}
	return PlatformCustom, false
}

// Endpoint 单次调用解析出的地址和模型
type Endpoint struct {
	Platform Platform
	BaseURL  string
	Model    string
}

// ResolveEndpoint 合并平台默认值和显式填写的值，显式值优先
// 参数:
//   - platform: 平台名
//   - explicitURL: 显式地址，可为空
//   - explicitModel: 显式模型，可为空
//
// 返回:
//   - Endpoint: 解析结果
//   - error: 地址或模型仍为空时返回包装了 ErrIncompleteEndpoint 的错误
func ResolveEndpoint(platform, explicitURL, explicitModel string) (Endpoint, error) {
	p, known := ParsePlatform(platform)
	ep := Endpoint{
		Platform: p,
		BaseURL:  strings.TrimSpace(explicitURL),
		Model:    strings.TrimSpace(explicitModel),
	}

	if defaults, ok := platformTable[p]; ok {
		if ep.BaseURL == "" {
			ep.BaseURL = defaults.BaseURL
		}
		if ep.Model == "" {
			ep.Model = defaults.Model
		}
	}

	if ep.BaseURL == "" || ep.Model == "" {
		if !known {
			return ep, errors.Wrapf(ErrIncompleteEndpoint, "unknown platform %q needs explicit url and model", platform)
		}
		return ep, errors.Wrapf(ErrIncompleteEndpoint, "platform %q needs explicit url and model", p)
	}
	return ep, nil
}
