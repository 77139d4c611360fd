package plan

import (
	"regexp"
	"strings"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
)

// 金额自始至终以十进制字符串表示，换算只做整数运算，
// 低于最小单位的尾数直接截断，宁可少转也绝不多转。

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// DecimalsFor 返回链原生代币最小单位的小数位数。
func DecimalsFor(chain intent.Chain) int {
	switch chain {
	case intent.ChainNEAR:
		return 24 // yoctoNEAR
	case intent.ChainEthereum:
		return 18 // wei
	case intent.ChainBitcoin:
		return 8 // satoshi
	default:
		return 18
	}
}

// ValidAmount 判断金额是否为严格大于零的有限十进制数。
func ValidAmount(amount string) bool {
	amount = strings.TrimSpace(amount)
	if !amountPattern.MatchString(amount) {
		return false
	}
	for _, ch := range amount {
		if ch >= '1' && ch <= '9' {
			return true
		}
	}
	return false
}

// ToSmallestUnit 把用户可读的十进制金额换算为链上最小单位的整数字符串。
// 超出精度的小数位被截断。
func ToSmallestUnit(amount string, decimals int) (string, error) {
	amount = strings.TrimSpace(amount)
	if !amountPattern.MatchString(amount) {
		return "", xerrors.New(CodeValidation, "金额必须是十进制数: "+amount)
	}

	intPart := amount
	fracPart := ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		intPart = amount[:idx]
		fracPart = amount[idx+1:]
	}
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	raw := strings.TrimLeft(intPart+fracPart, "0")
	if raw == "" {
		raw = "0"
	}
	return raw, nil
}

// FromSmallestUnit 把最小单位整数还原为十进制字符串，用于展示与回读校验。
func FromSmallestUnit(raw string, decimals int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Trim(raw, "0123456789") != "" {
		return "", xerrors.New(CodeValidation, "最小单位金额必须是非负整数: "+raw)
	}
	if len(raw) <= decimals {
		raw = strings.Repeat("0", decimals-len(raw)+1) + raw
	}
	cut := len(raw) - decimals
	intPart := strings.TrimLeft(raw[:cut], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := strings.TrimRight(raw[cut:], "0")
	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}
