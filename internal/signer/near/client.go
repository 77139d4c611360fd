package near

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/signer"
)

// Config describes how to reach the NEAR wallet bridge.
type Config struct {
	Name      string
	BridgeURL string
	SignerID  string
	Notes     string
}

// Client implements the signer.Adapter interface through a wallet bridge
// service. The bridge owns the key material and the approval UI; this
// client only submits requests and interprets the outcome. Submission has
// no client-side deadline because the user may take arbitrarily long to
// approve in the wallet; cancellation flows through the context.
type Client struct {
	name       string
	bridgeURL  string
	signerID   string
	httpClient *http.Client
}

// NEAR account IDs: 2-64 chars, lowercase alphanumeric segments separated
// by dots, with - and _ allowed inside a segment.
var accountPattern = regexp.MustCompile(`^(([a-z0-9]+[-_])*[a-z0-9]+\.)*([a-z0-9]+[-_])*[a-z0-9]+$`)

// ValidAccountID reports whether the value is a well-formed NEAR account ID.
func ValidAccountID(account string) bool {
	if len(account) < 2 || len(account) > 64 {
		return false
	}
	return accountPattern.MatchString(account)
}

// NewClient validates the bridge configuration and returns a ready adapter.
func NewClient(cfg Config) (*Client, error) {
	bridgeURL := strings.TrimRight(strings.TrimSpace(cfg.BridgeURL), "/")
	if bridgeURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 NEAR 钱包桥地址")
	}
	signerID := strings.TrimSpace(cfg.SignerID)
	if signerID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 NEAR 签名账户")
	}
	if !ValidAccountID(signerID) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "NEAR 签名账户格式不合法: "+signerID)
	}
	return &Client{
		name:       cfg.Name,
		bridgeURL:  bridgeURL,
		signerID:   signerID,
		httpClient: &http.Client{},
	}, nil
}

// Chain reports the chain family this adapter serves.
func (c *Client) Chain() intent.Chain { return intent.ChainNEAR }

type signRequest struct {
	SignerID   string `json:"signer_id"`
	ReceiverID string `json:"receiver_id"`
	Deposit    string `json:"deposit"`
}

type signResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Error           string `json:"error"`
}

// SignAndSubmit asks the wallet bridge to sign and broadcast a native
// transfer. The deposit is the amount in yoctoNEAR.
func (c *Client) SignAndSubmit(ctx context.Context, receiver, amountSmallestUnit string) (signer.Receipt, error) {
	receiver = strings.TrimSpace(receiver)
	if !ValidAccountID(receiver) {
		return signer.Receipt{}, xerrors.New(signer.CodeInvalidReceiver, "NEAR 账户格式不合法: "+receiver)
	}

	payload, err := json.Marshal(signRequest{
		SignerID:   c.signerID,
		ReceiverID: receiver,
		Deposit:    amountSmallestUnit,
	})
	if err != nil {
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "序列化签名请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL+"/sign-and-send", bytes.NewReader(payload))
	if err != nil {
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "构造签名请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "钱包桥不可达")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "读取钱包桥响应失败")
	}

	if resp.StatusCode == http.StatusConflict {
		return signer.Receipt{}, xerrors.New(signer.CodeUserRejected, "用户拒绝了签名请求")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return signer.Receipt{}, xerrors.New(signer.CodeNetwork,
			fmt.Sprintf("钱包桥返回状态码 %d", resp.StatusCode))
	}

	var decoded signResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "解析钱包桥响应失败")
	}
	if decoded.Error != "" {
		if isRejection(decoded.Error) {
			return signer.Receipt{}, xerrors.New(signer.CodeUserRejected, "用户拒绝了签名请求")
		}
		return signer.Receipt{}, xerrors.New(signer.CodeNetwork, "钱包桥报错: "+decoded.Error)
	}
	if decoded.TransactionHash == "" {
		return signer.Receipt{}, xerrors.New(signer.CodeNetwork, "钱包桥未返回交易哈希")
	}
	return signer.Receipt{Hash: decoded.TransactionHash}, nil
}

// Close is a no-op; the adapter holds no persistent connections.
func (c *Client) Close() {}

func isRejection(message string) bool {
	message = strings.ToLower(message)
	return strings.Contains(message, "reject") || strings.Contains(message, "denied") || strings.Contains(message, "cancel")
}

var _ signer.Adapter = (*Client)(nil)
