package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "NexusAI-Core/internal/errors"
)

// CodeService 表示代理托管服务调用失败。
const CodeService xerrors.Code = "AGENT_SERVICE_FAILED"

func init() {
	xerrors.Register(CodeService, xerrors.Attributes{
		Message:   "agent service call failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Config 描述代理托管服务的访问参数。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client 访问外部代理托管服务，负责部署自治代理并转发指令。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 校验配置并返回代理服务客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置代理服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type deployRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type deployResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Deploy 在托管服务上部署一个新代理，返回代理标识。
func (c *Client) Deploy(ctx context.Context, name, agentType string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "代理名称不能为空")
	}
	var decoded deployResponse
	if err := c.post(ctx, "/agents", deployRequest{Name: name, Type: agentType}, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", xerrors.New(CodeService, "代理服务报错: "+decoded.Error)
	}
	if decoded.ID == "" {
		return "", xerrors.New(CodeService, "代理服务未返回代理标识")
	}
	return decoded.ID, nil
}

type runRequest struct {
	Instruction string `json:"instruction"`
}

type runResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Run 把一条指令转发给已部署的代理并返回其输出。
func (c *Client) Run(ctx context.Context, name, instruction string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "代理名称不能为空")
	}
	var decoded runResponse
	if err := c.post(ctx, "/agents/"+name+"/actions", runRequest{Instruction: instruction}, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", xerrors.New(CodeService, "代理服务报错: "+decoded.Error)
	}
	return decoded.Output, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return xerrors.Wrap(CodeService, err, "序列化代理请求失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return xerrors.Wrap(CodeService, err, "构造代理请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(CodeService, err, "代理服务不可达")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.New(CodeService, fmt.Sprintf("代理服务返回状态码 %d", resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return xerrors.Wrap(CodeService, err, "解析代理响应失败")
	}
	return nil
}
