package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"NexusAI-Core/internal/provider"
	"NexusAI-Core/pkg/logger"
)

// Parser 负责把自由文本转换为 DecodedAction。
// 提供方按优先级顺序逐个尝试，全部失败或未配置时退回本地启发式分类，
// 因此 Parse 总能给出结果，不会因为外部故障而阻塞流程。
type Parser struct {
	gateways []provider.Gateway
	logger   *slog.Logger
}

// ParserOption 定义可选的 Parser 配置。
type ParserOption func(*Parser)

// WithParserLogger 指定日志输出。
func WithParserLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser 创建意图解析器。gateways 的顺序即回退顺序。
func NewParser(gateways []provider.Gateway, opts ...ParserOption) *Parser {
	p := &Parser{
		gateways: gateways,
		logger:   logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Parse 解析一条用户输入。永远返回一个动作；
// 模型输出格式错误会降级为 UNKNOWN，提供方故障会触发回退。
func (p *Parser) Parse(ctx context.Context, text string) DecodedAction {
	text = strings.TrimSpace(text)

	// 严格串行地尝试每个提供方，失败的请求不允许晚于成功结果返回。
	for _, gateway := range p.gateways {
		if gateway == nil {
			continue
		}
		content, err := gateway.Complete(ctx, text)
		if err != nil {
			p.logger.Warn("提供方调用失败，尝试下一个",
				slog.String("provider", gateway.Name()),
				slog.Any("error", err),
			)
			continue
		}
		action := decodeModelResponse(content)
		action.Chain = InferChain(action.Chain, action.Recipient)
		action.Utterance = text
		return action
	}

	if len(p.gateways) > 0 {
		p.logger.Warn("所有提供方均不可用，退回启发式分类")
	}
	action := Classify(text)
	action.Chain = InferChain(action.Chain, action.Recipient)
	action.Utterance = text
	return action
}

// wireAction 是模型输出的 JSON 结构。
type wireAction struct {
	Type   string `json:"type"`
	Params struct {
		Chain  string `json:"chain"`
		Amount string `json:"amount"`
		Token  string `json:"token"`
		To     string `json:"to"`
		Name   string `json:"name"`
	} `json:"params"`
	GasEstimate string `json:"gasEstimate"`
}

// decodeModelResponse 把提供方返回的文本解码为动作。
// 格式错误不报错，降级为 UNKNOWN，让上层生成一个不可执行的计划。
func decodeModelResponse(content string) DecodedAction {
	var wire wireAction
	if err := json.Unmarshal([]byte(stripFences(content)), &wire); err != nil {
		return DecodedAction{Kind: KindUnknown, Chain: ChainNEAR}
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(wire.Type)))
	if !IsValidKind(kind) {
		kind = KindUnknown
	}
	chain := Chain(strings.ToUpper(strings.TrimSpace(wire.Params.Chain)))
	if !IsValidChain(chain) {
		chain = ChainNEAR
	}
	return DecodedAction{
		Kind:            kind,
		Chain:           chain,
		Amount:          strings.TrimSpace(wire.Params.Amount),
		Token:           strings.TrimSpace(wire.Params.Token),
		Recipient:       strings.TrimSpace(wire.Params.To),
		AgentName:       strings.TrimSpace(wire.Params.Name),
		GasEstimateHint: strings.TrimSpace(wire.GasEstimate),
	}
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripFences 去掉模型偶尔附加的 Markdown 代码块包装。
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

var (
	evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// InferChain 根据地址形态修正链归属：0x 开头的 40 位十六进制地址视为以太坊，
// .near / .testnet 结尾的账户强制归属 NEAR，其余情况保留已有值，默认 NEAR。
func InferChain(current Chain, recipient string) Chain {
	if !IsValidChain(current) {
		current = ChainNEAR
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return current
	}
	if evmAddressPattern.MatchString(recipient) {
		return ChainEthereum
	}
	if strings.HasSuffix(recipient, ".near") || strings.HasSuffix(recipient, ".testnet") {
		return ChainNEAR
	}
	return current
}
