package vault

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

// CodeAccess 表示金库服务访问失败。
const CodeAccess xerrors.Code = "VAULT_ACCESS_FAILED"

func init() {
	xerrors.Register(CodeAccess, xerrors.Attributes{
		Message:   "vault access failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Object 是金库中一份加密存储对象的元数据。
type Object struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// Config 描述金库服务的访问参数。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client 访问外部金库服务。金库负责加密与持久化，
// 这里只做触发与元数据读取。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 校验配置并返回金库客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置金库服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// List 返回金库中的对象清单。
func (c *Client) List(ctx context.Context) ([]Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/objects", nil)
	if err != nil {
		return nil, xerrors.Wrap(CodeAccess, err, "构造金库请求失败")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(CodeAccess, err, "金库服务不可达")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, xerrors.New(CodeAccess, fmt.Sprintf("金库服务返回状态码 %d", resp.StatusCode))
	}

	var objects []Object
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&objects); err != nil {
		return nil, xerrors.Wrap(CodeAccess, err, "解析金库响应失败")
	}
	return objects, nil
}

type uploadRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Upload 把一份对象写入金库，返回服务端生成的元数据。
func (c *Client) Upload(ctx context.Context, name string, data []byte) (Object, error) {
	if strings.TrimSpace(name) == "" {
		return Object{}, xerrors.New(xerrors.CodeInvalidArgument, "对象名称不能为空")
	}
	payload, err := json.Marshal(uploadRequest{Name: name, Data: data})
	if err != nil {
		return Object{}, xerrors.Wrap(CodeAccess, err, "序列化上传请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/objects", bytes.NewReader(payload))
	if err != nil {
		return Object{}, xerrors.Wrap(CodeAccess, err, "构造上传请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Object{}, xerrors.Wrap(CodeAccess, err, "金库服务不可达")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Object{}, xerrors.New(CodeAccess, fmt.Sprintf("金库服务返回状态码 %d", resp.StatusCode))
	}

	var object Object
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&object); err != nil {
		return Object{}, xerrors.Wrap(CodeAccess, err, "解析上传响应失败")
	}
	return object, nil
}

// Describe 把对象清单拼成单行文本，供只读计划直接返回。
func (c *Client) Describe(ctx context.Context) (string, error) {
	objects, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "金库当前为空", nil
	}
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		names = append(names, object.Name)
	}
	return fmt.Sprintf("金库共 %d 个对象: %s", len(objects), strings.Join(names, ", ")), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
