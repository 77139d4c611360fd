package signer

import (
	"context"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
)

// Receipt captures the wallet submission result for a signed transaction.
type Receipt struct {
	Hash string
}

// Adapter is the uniform sign-and-submit capability every chain family
// exposes. How a wallet obtains user approval (popup, deep link, extension)
// is entirely inside the adapter; the coordinator treats all adapters alike.
// The amount is already converted to the chain's smallest unit.
type Adapter interface {
	Chain() intent.Chain
	SignAndSubmit(ctx context.Context, receiver, amountSmallestUnit string) (Receipt, error)
}

const (
	// CodeUserRejected 表示用户在钱包里拒绝或关闭了签名请求。
	CodeUserRejected xerrors.Code = "SIGNER_USER_REJECTED"
	// CodeNetwork 表示提交交易时的网络或节点故障。
	CodeNetwork xerrors.Code = "SIGNER_NETWORK_FAILURE"
	// CodeInvalidReceiver 表示收款地址不符合链的格式要求。
	CodeInvalidReceiver xerrors.Code = "SIGNER_INVALID_RECEIVER"
)

func init() {
	xerrors.Register(CodeUserRejected, xerrors.Attributes{
		Message:  "signature request rejected by user",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNetwork, xerrors.Attributes{
		Message:   "transaction submission failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeInvalidReceiver, xerrors.Attributes{
		Message:  "invalid receiver address",
		Severity: xerrors.SeverityInfo,
	})
}

// IsUserRejected 判断错误是否为用户主动拒绝签名。
func IsUserRejected(err error) bool {
	return xerrors.CodeOf(err) == CodeUserRejected
}
