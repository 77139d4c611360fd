package intent

// Kind 表示解析出的动作类型，是一个封闭枚举。
type Kind string

const (
	KindTransfer       Kind = "TRANSFER"
	KindSwap           Kind = "SWAP"
	KindDeployAgent    Kind = "DEPLOY_AGENT"
	KindAgentAction    Kind = "AGENT_ACTION"
	KindQueryPortfolio Kind = "QUERY_PORTFOLIO"
	KindVaultAccess    Kind = "VAULT_ACCESS"
	KindUnknown        Kind = "UNKNOWN"
)

// IsValidKind 检查给定的动作类型是否为支持的枚举值。
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindTransfer, KindSwap, KindDeployAgent, KindAgentAction,
		KindQueryPortfolio, KindVaultAccess, KindUnknown:
		return true
	default:
		return false
	}
}

// Chain 表示动作归属的链，由地址形态与关键字推断，而不是由用户显式选择。
type Chain string

const (
	ChainNEAR     Chain = "NEAR"
	ChainEthereum Chain = "ETHEREUM"
	ChainBitcoin  Chain = "BITCOIN"
)

// IsValidChain 检查给定的链标识是否为支持的枚举值。
func IsValidChain(chain Chain) bool {
	switch chain {
	case ChainNEAR, ChainEthereum, ChainBitcoin:
		return true
	default:
		return false
	}
}

// DecodedAction 是一条用户输入经解析后得到的结构化动作。
// 数值字段保留字符串形式，验证与换算由计划解析器完成，
// 避免在解码阶段引入浮点精度损失。每条输入生成一个新实例，创建后不再修改。
type DecodedAction struct {
	Kind            Kind
	Chain           Chain
	Amount          string
	Token           string
	Recipient       string
	AgentName       string
	GasEstimateHint string
	// Utterance 保留用户的原始输入，转发给已部署代理时原样传递。
	Utterance string
}
