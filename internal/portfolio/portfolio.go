package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
	"NexusAI-Core/pkg/logger"
)

// CodeQuery 表示余额查询失败，可稍后重试。
const CodeQuery xerrors.Code = "PORTFOLIO_QUERY_FAILED"

func init() {
	xerrors.Register(CodeQuery, xerrors.Attributes{
		Message:   "portfolio query failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Balance 是某条链上原生代币的可读余额。
type Balance struct {
	Chain   intent.Chain `json:"chain"`
	Token   string       `json:"token"`
	Account string       `json:"account"`
	Amount  string       `json:"amount"`
}

// RedisConfig 描述余额缓存的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// Config 描述投资组合服务要查询的账户与端点。
// 未配置的链直接跳过，不算错误。
type Config struct {
	NEARRPCURL  string
	NEARAccount string
	EthRPCURL   string
	EthAccount  string
	Redis       RedisConfig
}

// Service 聚合各链余额并附带一层可选的 Redis 缓存。
type Service struct {
	nearRPCURL  string
	nearAccount string
	ethAccount  common.Address
	eth         *ethclient.Client
	cache       *redis.Client
	ttl         time.Duration
	httpClient  *http.Client
}

// NewService 根据配置构建投资组合服务。
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	s := &Service{
		nearRPCURL:  strings.TrimSpace(cfg.NEARRPCURL),
		nearAccount: strings.TrimSpace(cfg.NEARAccount),
		ttl:         cfg.Redis.TTL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Second
	}

	if ethURL := strings.TrimSpace(cfg.EthRPCURL); ethURL != "" {
		ethAccount := strings.TrimSpace(cfg.EthAccount)
		if !common.IsHexAddress(ethAccount) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "EVM 查询账户地址不合法: "+ethAccount)
		}
		eth, err := ethclient.DialContext(ctx, ethURL)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 EVM 节点失败")
		}
		s.eth = eth
		s.ethAccount = common.HexToAddress(ethAccount)
	}

	if addr := strings.TrimSpace(cfg.Redis.Address); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
		}
		s.cache = client
	}
	return s, nil
}

// Balances 返回所有已配置账户的当前余额。
func (s *Service) Balances(ctx context.Context) ([]Balance, error) {
	var balances []Balance
	if s.nearRPCURL != "" && s.nearAccount != "" {
		amount, err := s.cached(ctx, intent.ChainNEAR, s.nearAccount, s.nearBalance)
		if err != nil {
			return nil, err
		}
		balances = append(balances, Balance{
			Chain:   intent.ChainNEAR,
			Token:   "NEAR",
			Account: s.nearAccount,
			Amount:  amount,
		})
	}
	if s.eth != nil {
		amount, err := s.cached(ctx, intent.ChainEthereum, s.ethAccount.Hex(), s.ethBalance)
		if err != nil {
			return nil, err
		}
		balances = append(balances, Balance{
			Chain:   intent.ChainEthereum,
			Token:   "ETH",
			Account: s.ethAccount.Hex(),
			Amount:  amount,
		})
	}
	return balances, nil
}

// Summary 把余额拼成单行文本，供只读计划直接作为执行结果返回。
func (s *Service) Summary(ctx context.Context) (string, error) {
	balances, err := s.Balances(ctx)
	if err != nil {
		return "", err
	}
	if len(balances) == 0 {
		return "未配置任何可查询的账户", nil
	}
	parts := make([]string, 0, len(balances))
	for _, b := range balances {
		parts = append(parts, fmt.Sprintf("%s %s (%s)", b.Amount, b.Token, b.Account))
	}
	return strings.Join(parts, "; "), nil
}

type fetchFunc func(ctx context.Context) (string, error)

// cached 先查 Redis 再回源，缓存失败只记日志不影响查询。
func (s *Service) cached(ctx context.Context, chain intent.Chain, account string, fetch fetchFunc) (string, error) {
	key := fmt.Sprintf("nexusai:portfolio:%s:%s", chain, account)
	if s.cache != nil {
		if value, err := s.cache.Get(ctx, key).Result(); err == nil {
			return value, nil
		} else if err != redis.Nil {
			logger.L().Warn("读取余额缓存失败", "key", key, "error", err)
		}
	}
	value, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value, s.ttl).Err(); err != nil {
			logger.L().Warn("写入余额缓存失败", "key", key, "error", err)
		}
	}
	return value, nil
}

type nearQueryRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type nearQueryResponse struct {
	Result struct {
		Amount string `json:"amount"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) nearBalance(ctx context.Context) (string, error) {
	payload, err := json.Marshal(nearQueryRequest{
		JSONRPC: "2.0",
		ID:      "dontcare",
		Method:  "query",
		Params: map[string]any{
			"request_type": "view_account",
			"finality":     "final",
			"account_id":   s.nearAccount,
		},
	})
	if err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "序列化 NEAR 查询失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.nearRPCURL, bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "构造 NEAR 查询失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "NEAR 节点不可达")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "读取 NEAR 响应失败")
	}
	var decoded nearQueryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "解析 NEAR 响应失败")
	}
	if decoded.Error != nil {
		return "", xerrors.New(CodeQuery, "NEAR 节点报错: "+decoded.Error.Message)
	}
	if decoded.Result.Amount == "" {
		return "", xerrors.New(CodeQuery, "NEAR 节点未返回余额")
	}
	return plan.FromSmallestUnit(decoded.Result.Amount, plan.DecimalsFor(intent.ChainNEAR))
}

func (s *Service) ethBalance(ctx context.Context) (string, error) {
	wei, err := s.eth.BalanceAt(ctx, s.ethAccount, nil)
	if err != nil {
		return "", xerrors.Wrap(CodeQuery, err, "查询 EVM 余额失败")
	}
	return plan.FromSmallestUnit(wei.String(), plan.DecimalsFor(intent.ChainEthereum))
}

// Close 释放持有的连接。
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.eth != nil {
		s.eth.Close()
		s.eth = nil
	}
	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
}
