package evm

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/signer"
)

// Config describes how to construct an EVM signing adapter.
type Config struct {
	Name   string
	RPCURL string
	From   string
	Notes  string
}

// Client implements the signer.Adapter interface for EVM compatible chains.
// It talks to a node (or wallet connector) that manages the sending account,
// so signing happens server-side via eth_sendTransaction.
type Client struct {
	name      string
	notes     string
	from      common.Address
	rpcClient *gethrpc.Client
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready adapter.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 EVM RPC 地址")
	}
	from := strings.TrimSpace(cfg.From)
	if !common.IsHexAddress(from) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "EVM 发送账户地址不合法: "+from)
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 EVM 节点失败")
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		from:      common.HexToAddress(from),
		rpcClient: rpcClient,
	}, nil
}

// Chain reports the chain family this adapter serves.
func (c *Client) Chain() intent.Chain { return intent.ChainEthereum }

// SignAndSubmit submits a native value transfer through the node's managed
// account. The amount is the value in wei as a decimal string.
func (c *Client) SignAndSubmit(ctx context.Context, receiver, amountSmallestUnit string) (signer.Receipt, error) {
	receiver = strings.TrimSpace(receiver)
	if !common.IsHexAddress(receiver) {
		return signer.Receipt{}, xerrors.New(signer.CodeInvalidReceiver, "EVM 地址格式不合法: "+receiver)
	}

	value, ok := new(big.Int).SetString(amountSmallestUnit, 10)
	if !ok || value.Sign() < 0 {
		return signer.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "wei 金额必须是非负整数: "+amountSmallestUnit)
	}

	tx := map[string]any{
		"from":  c.from,
		"to":    common.HexToAddress(receiver),
		"value": (*hexutil.Big)(value),
	}

	var hash common.Hash
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		if isRejection(err.Error()) {
			return signer.Receipt{}, xerrors.Wrap(signer.CodeUserRejected, err, "用户拒绝了签名请求")
		}
		return signer.Receipt{}, xerrors.Wrap(signer.CodeNetwork, err, "提交 EVM 交易失败")
	}
	return signer.Receipt{Hash: hash.Hex()}, nil
}

// Close releases the network connection held by the adapter.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

func isRejection(message string) bool {
	message = strings.ToLower(message)
	return strings.Contains(message, "reject") || strings.Contains(message, "denied") || strings.Contains(message, "cancel")
}

var _ signer.Adapter = (*Client)(nil)
