package llm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in    string
		want  Platform
		known bool
	}{
		{in: "deepseek", want: PlatformDeepSeek, known: true},
		{in: "  ZhiPu ", want: PlatformZhipu, known: true},
		{in: "DashScope", want: PlatformTongyi, known: true},
		{in: "glm", want: PlatformZhipu, known: true},
		{in: "OpenAI", want: PlatformOpenAI, known: true},
		{in: "custom", want: PlatformCustom, known: true},
		{in: "ollama", want: PlatformCustom, known: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, known := ParsePlatform(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		platform  string
		url       string
		model     string
		want      Endpoint
		expectErr bool
	}{
		{
			name:     "platform defaults",
			platform: "DeepSeek",
			want:     Endpoint{Platform: PlatformDeepSeek, BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
		},
		{
			name:     "explicit values win",
			platform: "zhipu",
			url:      "https://proxy.local/v4",
			model:    "glm-4-plus",
			want:     Endpoint{Platform: PlatformZhipu, BaseURL: "https://proxy.local/v4", Model: "glm-4-plus"},
		},
		{
			name:     "explicit model only",
			platform: "tongyi",
			model:    "qwen-max",
			want:     Endpoint{Platform: PlatformTongyi, BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-max"},
		},
		{
			name:     "custom with both",
			platform: "custom",
			url:      "http://localhost:11434/v1",
			model:    "llama3",
			want:     Endpoint{Platform: PlatformCustom, BaseURL: "http://localhost:11434/v1", Model: "llama3"},
		},
		{
			name:      "custom missing model",
			platform:  "custom",
			url:       "http://localhost:11434/v1",
			expectErr: true,
		},
		{
			name:      "unknown without overrides",
			platform:  "moonshot",
			expectErr: true,
		},
		{
			name:     "unknown with overrides",
			platform: "moonshot",
			url:      "https://api.moonshot.cn/v1",
			model:    "moonshot-v1-8k",
			want:     Endpoint{Platform: PlatformCustom, BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.platform, tt.url, tt.model)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIncompleteEndpoint))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
