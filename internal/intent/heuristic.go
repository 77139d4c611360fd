package intent

import (
	"regexp"
	"strings"
)

// 启发式分类是提供方全部失败或未配置时的兜底路径，
// 只做关键字匹配，不理解语义，识别能力有限是有意为之。

var (
	decimalPattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	tokenKeywords  = []string{"NEAR", "ETH", "USDC", "USDT", "BTC"}
)

// Classify 用关键字按优先级对输入做本地分类。
func Classify(text string) DecodedAction {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "send") || strings.Contains(lower, "transfer"):
		return classifyTransfer(text, lower)
	case strings.Contains(lower, "swap"):
		return classifySwap(text, lower)
	case strings.Contains(lower, "portfolio") || strings.Contains(lower, "balance"):
		return DecodedAction{Kind: KindQueryPortfolio, Chain: ChainNEAR}
	case strings.Contains(lower, "vault") || strings.Contains(lower, "store") || strings.Contains(lower, "upload"):
		return DecodedAction{Kind: KindVaultAccess, Chain: ChainNEAR}
	case strings.Contains(lower, "deploy") && strings.Contains(lower, "agent"):
		return DecodedAction{Kind: KindDeployAgent, Chain: ChainNEAR, AgentName: wordAfter(text, "agent")}
	default:
		return DecodedAction{Kind: KindUnknown, Chain: ChainNEAR}
	}
}

func classifyTransfer(text, lower string) DecodedAction {
	return DecodedAction{
		Kind:      KindTransfer,
		Chain:     ChainNEAR,
		Amount:    decimalPattern.FindString(lower),
		Token:     firstToken(lower),
		Recipient: wordAfter(text, "to"),
	}
}

func classifySwap(text, lower string) DecodedAction {
	target := ""
	// 显式的目标词优先："swap 10 USDC to NEAR" / "for NEAR"。
	for _, sep := range []string{"to", "for"} {
		if word := wordAfter(text, sep); word != "" && isTokenKeyword(word) {
			target = strings.ToUpper(word)
			break
		}
	}
	// 否则取出现的代币关键字在 NEAR/USDC 交易对中的另一侧。
	if target == "" {
		if strings.Contains(lower, "usdc") {
			target = "NEAR"
		} else {
			target = "USDC"
		}
	}
	return DecodedAction{
		Kind:   KindSwap,
		Chain:  ChainNEAR,
		Amount: decimalPattern.FindString(lower),
		Token:  target,
	}
}

// firstToken 返回文本里出现的第一个代币关键字。
func firstToken(lower string) string {
	first := ""
	firstIdx := -1
	for _, token := range tokenKeywords {
		idx := strings.Index(lower, strings.ToLower(token))
		if idx >= 0 && (firstIdx < 0 || idx < firstIdx) {
			first = token
			firstIdx = idx
		}
	}
	return first
}

func isTokenKeyword(word string) bool {
	upper := strings.ToUpper(word)
	for _, token := range tokenKeywords {
		if upper == token {
			return true
		}
	}
	return false
}

// wordAfter 返回紧跟在指定单词后面的那个词，用于提取收款人或代理名。
func wordAfter(text, keyword string) string {
	fields := strings.Fields(text)
	for i, field := range fields {
		if strings.EqualFold(field, keyword) && i+1 < len(fields) {
			return strings.Trim(fields[i+1], ".,!?\"'")
		}
	}
	return ""
}
