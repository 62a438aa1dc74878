package service

import (
	"github.com/pkg/errors"
)

// 推理链路的错误类型
// 前三种在写入任何消息之前返回，后两种返回前已经删除了本轮的用户消息
var (
	ErrModelUnavailable         = errors.New("模型不存在或已禁用")
	ErrCredentialUnavailable    = errors.New("API 密钥不存在或已禁用")
	ErrPlatformConfigIncomplete = errors.New("模型平台配置不完整")
	ErrInferenceFailed          = errors.New("AI 回复失败")
	ErrStreamInterrupted        = errors.New("AI 流式回复中断")
)

// 对话相关错误
var (
	ErrConversationNotFound  = errors.New("对话不存在")
	ErrConversationForbidden = errors.New("无权限访问此对话")
	ErrConversationBusy      = errors.New("对话正在生成回复，请稍后再试")
	ErrPersonaNotFound       = errors.New("角色不存在")
)

// InferenceError 带类型的推理错误
// Kind 是上面的哨兵错误之一，Cause 是底层原因（网络错误、超时等）
// errors.Is 对两者都成立
type InferenceError struct {
	Kind  error
	Cause error
}

func (e *InferenceError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *InferenceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newInferenceError(kind, cause error) error {
	return &InferenceError{Kind: kind, Cause: cause}
}

// inferenceKinds 按映射优先级排列
var inferenceKinds = []error{
	ErrModelUnavailable,
	ErrCredentialUnavailable,
	ErrPlatformConfigIncomplete,
	ErrStreamInterrupted,
	ErrInferenceFailed,
}

// KindOf 返回 err 对应的推理错误类型，不属于任何类型时返回 nil
func KindOf(err error) error {
	for _, kind := range inferenceKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
