package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config 描述了 NexusAI 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Signer    SignerConfig     `json:"signer"`
	Portfolio PortfolioConfig  `json:"portfolio"`
	Vault     VaultConfig      `json:"vault"`
	Agent     AgentConfig      `json:"agent"`
	History   HistoryConfig    `json:"history"`
	Events    EventsConfig     `json:"events"`
	Logging   LoggingConfig    `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
// APIKeyEnv 指向存放接口密钥的环境变量，留空则不启用认证。
type ServerConfig struct {
	Address   string `json:"address"`
	APIKeyEnv string `json:"api_key_env"`
}

// ProviderConfig 描述一个模型提供方。密钥只允许通过环境变量注入，
// 配置文件里存放的是环境变量名而不是密钥本身。
type ProviderConfig struct {
	Name           string `json:"name"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	APIKeyEnv      string `json:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// APIKey 从环境变量解析提供方密钥。
func (p ProviderConfig) APIKey() string {
	if strings.TrimSpace(p.APIKeyEnv) == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// SignerConfig 指向链签名端点的 YAML 定义文件。
type SignerConfig struct {
	ChainConfig string `json:"chain_config"`
}

// RedisConfig 描述余额缓存的连接参数。
type RedisConfig struct {
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// PortfolioConfig 描述投资组合查询的账户与端点。
type PortfolioConfig struct {
	NEARRPCURL  string      `json:"near_rpc_url"`
	NEARAccount string      `json:"near_account"`
	EthRPCURL   string      `json:"eth_rpc_url"`
	EthAccount  string      `json:"eth_account"`
	Redis       RedisConfig `json:"redis"`
}

// VaultConfig 描述金库服务的访问参数。
type VaultConfig struct {
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// AgentConfig 描述代理托管服务的访问参数。
type AgentConfig struct {
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// HistoryConfig 选择执行历史的存储后端。
type HistoryConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// EventsConfig 选择执行事件的投递后端。
type EventsConfig struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
	Queue  string `json:"queue"`
}

// AuditConfig 控制交易审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// LoggingConfig 控制结构化日志输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	for i := range c.Providers {
		if c.Providers[i].TimeoutSeconds <= 0 {
			c.Providers[i].TimeoutSeconds = 8
		}
	}

	if c.Signer.ChainConfig == "" {
		c.Signer.ChainConfig = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Signer.ChainConfig) {
		c.Signer.ChainConfig = filepath.Join(baseDir, c.Signer.ChainConfig)
	}

	if c.History.Driver == "" {
		c.History.Driver = "memory"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
}
