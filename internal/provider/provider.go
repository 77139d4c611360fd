package provider

import (
	"context"

	xerrors "NexusAI-Core/internal/errors"
)

// Gateway 定义了调用大模型补全端点的统一接口。
// 一次调用对应一次外部请求，网关内部不做重试，
// 失败的恢复策略由上层的意图解析器负责。
type Gateway interface {
	Name() string
	Complete(ctx context.Context, userText string) (string, error)
}

const (
	// CodeTransient 表示提供方临时不可用（限流、5xx 等），可换下一个提供方。
	CodeTransient xerrors.Code = "PROVIDER_TRANSIENT"
	// CodeAuth 表示凭证无效或缺失。
	CodeAuth xerrors.Code = "PROVIDER_AUTH"
	// CodeUnreachable 表示网络层面无法触达提供方。
	CodeUnreachable xerrors.Code = "PROVIDER_UNREACHABLE"
)

func init() {
	xerrors.Register(CodeTransient, xerrors.Attributes{
		Message:   "provider temporarily unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeAuth, xerrors.Attributes{
		Message:  "provider authentication failed",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeUnreachable, xerrors.Attributes{
		Message:   "provider unreachable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// IsProviderError 判断错误是否属于提供方调用失败。
func IsProviderError(err error) bool {
	switch xerrors.CodeOf(err) {
	case CodeTransient, CodeAuth, CodeUnreachable, xerrors.CodeTimeout:
		return true
	default:
		return false
	}
}
