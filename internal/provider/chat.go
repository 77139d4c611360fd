package provider

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "NexusAI-Core/internal/errors"
)

const (
	defaultTimeout     = 8 * time.Second
	defaultTemperature = 0.1
)

// ChatConfig 描述了调用一个 OpenAI 兼容 Chat Completions 端点所需的信息。
type ChatConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ChatGateway 通过 HTTP 调用 OpenAI 兼容的补全端点。
type ChatGateway struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewChatGateway 根据配置创建补全网关。
func NewChatGateway(cfg ChatConfig) (*ChatGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置提供方 base_url")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置提供方 API Key")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置提供方模型名")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatGateway{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name 返回提供方名称，用于日志与回退顺序展示。
func (g *ChatGateway) Name() string {
	return g.name
}

// Complete 调用补全端点并返回原始文本内容。
func (g *ChatGateway) Complete(ctx context.Context, userText string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userText},
		},
		"temperature": defaultTemperature,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化提供方请求失败")
	}

	endpoint := g.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(CodeUnreachable, err, "构建提供方请求失败", xerrors.WithMetadata("provider", g.name))
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", xerrors.Wrap(xerrors.CodeTimeout, err, "提供方调用超时", xerrors.WithMetadata("provider", g.name))
		}
		return "", xerrors.Wrap(CodeUnreachable, err, "请求提供方失败", xerrors.WithMetadata("provider", g.name))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := strings.TrimSpace(string(body))
		code := CodeTransient
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = CodeAuth
		}
		return "", xerrors.New(code,
			fmt.Sprintf("提供方返回错误状态 %d: %s", resp.StatusCode, detail),
			xerrors.WithMetadata("provider", g.name),
		)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(CodeTransient, err, "解析提供方响应失败", xerrors.WithMetadata("provider", g.name))
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(CodeTransient, "提供方响应中没有有效的 choices", xerrors.WithMetadata("provider", g.name))
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(CodeTransient, "提供方响应内容为空", xerrors.WithMetadata("provider", g.name))
	}
	return content, nil
}

// systemPrompt 约束模型只输出固定 schema 的 JSON。
const systemPrompt = `You are a transaction parser for a crypto wallet.
You convert natural language intents into strict JSON.
Supported Actions and schemas:

1. TRANSFER
{
  "type": "TRANSFER",
  "params": {
    "chain": "NEAR" | "ETHEREUM" | "BITCOIN",
    "amount": "string number",
    "token": "symbol",
    "to": "account_id"
  },
  "gasEstimate": "string"
}

2. SWAP
{
  "type": "SWAP",
  "params": {
    "chain": "NEAR",
    "amount": "string number",
    "token": "FROM -> TO"
  },
  "gasEstimate": "string"
}

3. DEPLOY_AGENT
{
  "type": "DEPLOY_AGENT",
  "params": {
    "name": "string",
    "type": "shade-basic"
  },
  "gasEstimate": "string"
}

RULES:
- Only output JSON. No markdown formatting.
- Default to chain="NEAR" if unspecified.
- If the token is ETH and address looks like 0x..., chain is ETHEREUM.
- If the address ends in .near or .testnet, chain is NEAR.`
