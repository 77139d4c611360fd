package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"NexusAI-Core/internal/agent"
	"NexusAI-Core/internal/api"
	"NexusAI-Core/internal/config"
	"NexusAI-Core/internal/events"
	"NexusAI-Core/internal/exec"
	"NexusAI-Core/internal/history"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
	"NexusAI-Core/internal/portfolio"
	"NexusAI-Core/internal/provider"
	"NexusAI-Core/internal/signer/registry"
	"NexusAI-Core/internal/vault"
	"NexusAI-Core/pkg/logger"
)

// main 是 NexusAI 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("nexusd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("NEXUSAI_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "nexusai.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 模型提供方按配置顺序回退。
	gateways := make([]provider.Gateway, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		gateway, err := provider.NewChatGateway(provider.ChatConfig{
			Name:    pc.Name,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey(),
			Model:   pc.Model,
			Timeout: time.Duration(pc.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		gateways = append(gateways, gateway)
	}

	signers, err := registry.New(ctx, cfg.Signer.ChainConfig)
	if err != nil {
		return err
	}
	defer signers.Close()

	var store history.Store
	switch cfg.History.Driver {
	case "", "memory":
		store = history.NewMemoryStore()
	case "mysql":
		store, err = history.NewMySQLStore(cfg.History.DSN)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的历史存储驱动: %s", cfg.History.Driver)
	}
	defer func() { _ = store.Close() }()

	var publisher events.Publisher
	switch cfg.Events.Driver {
	case "", "memory":
		publisher = events.NewMemoryPublisher()
	case "rabbitmq":
		publisher, err = events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.Events.URL,
			Queue:   cfg.Events.Queue,
			Durable: true,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
	defer func() { _ = publisher.Close() }()

	options := []exec.Option{
		exec.WithHistory(store),
		exec.WithEvents(publisher),
	}

	var portfolioService *portfolio.Service
	if cfg.Portfolio.NEARRPCURL != "" || cfg.Portfolio.EthRPCURL != "" {
		portfolioService, err = portfolio.NewService(ctx, portfolio.Config{
			NEARRPCURL:  cfg.Portfolio.NEARRPCURL,
			NEARAccount: cfg.Portfolio.NEARAccount,
			EthRPCURL:   cfg.Portfolio.EthRPCURL,
			EthAccount:  cfg.Portfolio.EthAccount,
			Redis: portfolio.RedisConfig{
				Address:  cfg.Portfolio.Redis.Address,
				Password: cfg.Portfolio.Redis.Password,
				DB:       cfg.Portfolio.Redis.DB,
				TTL:      time.Duration(cfg.Portfolio.Redis.TTLSeconds) * time.Second,
			},
		})
		if err != nil {
			return err
		}
		defer portfolioService.Close()
		options = append(options, exec.WithPortfolio(portfolioService))
	}

	if cfg.Vault.BaseURL != "" {
		vaultClient, err := vault.NewClient(vault.Config{
			BaseURL: cfg.Vault.BaseURL,
			APIKey:  os.Getenv(cfg.Vault.APIKeyEnv),
			Timeout: time.Duration(cfg.Vault.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		options = append(options, exec.WithVault(vaultClient))
	}

	if cfg.Agent.BaseURL != "" {
		agentClient, err := agent.NewClient(agent.Config{
			BaseURL: cfg.Agent.BaseURL,
			APIKey:  os.Getenv(cfg.Agent.APIKeyEnv),
			Timeout: time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		options = append(options, exec.WithAgents(agentClient))
	}

	coordinator := exec.NewCoordinator(signers, options...)

	deps := api.Deps{
		Parser:      intent.NewParser(gateways),
		Resolver:    plan.NewResolver(plan.ResolverConfig{}),
		Coordinator: coordinator,
		Sessions:    exec.NewSessions(),
		History:     store,
	}
	if cfg.Server.APIKeyEnv != "" {
		deps.APIKey = os.Getenv(cfg.Server.APIKeyEnv)
	}
	if portfolioService != nil {
		deps.Portfolio = portfolioService
	}

	server := api.NewServer(cfg.Server.Address, deps)
	logger.L().Info("nexusd 启动", "address", cfg.Server.Address)

	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
