package plan

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"NexusAI-Core/internal/intent"
)

// 每条链的默认 gas 估算值。UI 永远展示一个费用数字，所以不允许留空。
var defaultGasEstimates = map[intent.Chain]string{
	intent.ChainNEAR:     "0.00025 NEAR",
	intent.ChainEthereum: "0.002 ETH",
	intent.ChainBitcoin:  "0.0001 BTC",
}

// 每条链的默认兑换合约。兑换的"收款方"是协议地址而不是人，
// 由解析器合成，不向用户索要。
var defaultSwapContracts = map[intent.Chain]string{
	intent.ChainNEAR:     "v2.ref-finance.near",
	intent.ChainEthereum: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
}

// placeholderPattern 匹配模型常用的占位收款人写法，例如 [address]。
var placeholderPattern = regexp.MustCompile(`^\[.+\]$`)

// IsPlaceholder 判断收款人是否为尚未填写的占位值。
func IsPlaceholder(recipient string) bool {
	return placeholderPattern.MatchString(strings.TrimSpace(recipient))
}

// ResolverConfig 允许覆盖默认的兑换合约与 gas 估算。
type ResolverConfig struct {
	SwapContracts map[intent.Chain]string
	GasEstimates  map[intent.Chain]string
}

// Resolver 把解码动作验证、补全为规范的行动计划。
type Resolver struct {
	swapContracts map[intent.Chain]string
	gasEstimates  map[intent.Chain]string
}

// NewResolver 创建计划解析器，未覆盖的默认值取内置常量。
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		swapContracts: make(map[intent.Chain]string, len(defaultSwapContracts)),
		gasEstimates:  make(map[intent.Chain]string, len(defaultGasEstimates)),
	}
	for chain, contract := range defaultSwapContracts {
		r.swapContracts[chain] = contract
	}
	for chain, gas := range defaultGasEstimates {
		r.gasEstimates[chain] = gas
	}
	for chain, contract := range cfg.SwapContracts {
		if strings.TrimSpace(contract) != "" {
			r.swapContracts[chain] = contract
		}
	}
	for chain, gas := range cfg.GasEstimates {
		if strings.TrimSpace(gas) != "" {
			r.gasEstimates[chain] = gas
		}
	}
	return r
}

// Resolve 按动作类型做 schema 验证并生成计划。
// 验证失败不报错，而是产出 needs_input 状态的计划，由 UI 补齐字段。
func (r *Resolver) Resolve(action intent.DecodedAction) *Plan {
	p := &Plan{
		ID:          uuid.NewString(),
		Kind:        action.Kind,
		Chain:       action.Chain,
		Token:       strings.TrimSpace(action.Token),
		Amount:      strings.TrimSpace(action.Amount),
		Recipient:   strings.TrimSpace(action.Recipient),
		AgentName:   strings.TrimSpace(action.AgentName),
		GasEstimate: strings.TrimSpace(action.GasEstimateHint),
		CreatedAt:   time.Now().Unix(),
	}
	if !intent.IsValidChain(p.Chain) {
		p.Chain = intent.ChainNEAR
	}
	if p.GasEstimate == "" {
		p.GasEstimate = r.gasEstimates[p.Chain]
	}

	switch action.Kind {
	case intent.KindTransfer:
		r.resolveTransfer(p)
	case intent.KindSwap:
		r.resolveSwap(p)
	case intent.KindDeployAgent:
		r.resolveDeployAgent(p)
	case intent.KindAgentAction, intent.KindQueryPortfolio, intent.KindVaultAccess:
		r.resolveReadOnly(p, action.Utterance)
	default:
		p.Kind = intent.KindUnknown
		p.Status = StatusNeedsInput
		p.MissingField = "intent"
	}
	return p
}

func (r *Resolver) resolveTransfer(p *Plan) {
	if !ValidAmount(p.Amount) {
		p.Status = StatusNeedsInput
		p.MissingField = "amount"
	} else if p.Token == "" {
		p.Status = StatusNeedsInput
		p.MissingField = "token"
	} else if p.Recipient == "" || IsPlaceholder(p.Recipient) {
		// 占位收款人不算真实地址，必须由用户补填后才允许执行。
		p.Status = StatusNeedsInput
		p.MissingField = "recipient"
		p.Recipient = ""
	} else {
		p.Status = StatusReady
	}

	recipientStep := StepPending
	if p.Status == StatusReady {
		recipientStep = StepCompleted
	}
	p.Steps = []Step{
		{Label: stepValidateRecipient, Status: recipientStep},
		{Label: "Check balance", Status: StepCompleted},
		{Label: "Construct transaction", Status: StepPending},
		{Label: "Sign & broadcast", Status: StepPending},
	}
}

func (r *Resolver) resolveSwap(p *Plan) {
	// 模型路径可能给出 "FROM -> TO" 形式，取目标代币。
	if idx := strings.Index(p.Token, "->"); idx >= 0 {
		p.Token = strings.TrimSpace(p.Token[idx+2:])
	}

	if !ValidAmount(p.Amount) {
		p.Status = StatusNeedsInput
		p.MissingField = "amount"
	} else if p.Token == "" {
		p.Status = StatusNeedsInput
		p.MissingField = "token"
	} else {
		p.Status = StatusReady
	}
	if p.Recipient == "" || IsPlaceholder(p.Recipient) {
		p.Recipient = r.swapContracts[p.Chain]
	}

	p.Steps = []Step{
		{Label: "Fetch route", Status: StepCompleted},
		{Label: "Approve token spending", Status: StepPending},
		{Label: "Execute swap", Status: StepPending},
	}
}

func (r *Resolver) resolveDeployAgent(p *Plan) {
	if p.AgentName == "" {
		p.AgentName = fmt.Sprintf("agent-%d", time.Now().Unix())
	}
	p.AgentType = AgentTypeBasic
	p.Status = StatusReady
	p.Steps = []Step{
		{Label: "Provision agent", Status: StepPending},
		{Label: "Register on-chain", Status: StepPending},
	}
}

func (r *Resolver) resolveReadOnly(p *Plan, utterance string) {
	p.Status = StatusReady
	label := "Query portfolio"
	switch p.Kind {
	case intent.KindVaultAccess:
		label = "Open vault"
	case intent.KindAgentAction:
		label = "Dispatch agent action"
		p.Instruction = strings.TrimSpace(utterance)
	}
	p.Steps = []Step{
		{Label: label, Status: StepCompleted},
	}
}

// SwapContract 返回某条链的默认兑换合约，供执行层做收款人兜底。
func (r *Resolver) SwapContract(chain intent.Chain) string {
	return r.swapContracts[chain]
}
