package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/signer"
	"NexusAI-Core/internal/signer/evm"
	"NexusAI-Core/internal/signer/near"
)

// Registry manages signing adapters keyed by chain family. Each chain has
// at most one adapter; resolution happens by the plan's chain identifier.
type Registry struct {
	adapters map[intent.Chain]signer.Adapter
}

// New loads chain definitions from the YAML file and instantiates the
// concrete adapters declared there.
func New(ctx context.Context, chainConfigPath string) (*Registry, error) {
	defs, err := signer.LoadChainDefinitions(chainConfigPath)
	if err != nil {
		return nil, err
	}

	adapters := make(map[intent.Chain]signer.Adapter)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		switch chainType {
		case "near":
			adapter, err := near.NewClient(near.Config{
				Name:      name,
				BridgeURL: chain.Endpoint,
				SignerID:  chain.SignerID,
				Notes:     chain.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			adapters[adapter.Chain()] = adapter
		case "evm":
			adapter, err := evm.NewClient(ctx, evm.Config{
				Name:   name,
				RPCURL: chain.Endpoint,
				From:   chain.From,
				Notes:  chain.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			adapters[adapter.Chain()] = adapter
		default:
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(adapters) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置任何链的签名端点")
	}
	return &Registry{adapters: adapters}, nil
}

// NewWithAdapters builds a registry from pre-constructed adapters,
// used by tests and embedded setups.
func NewWithAdapters(adapters ...signer.Adapter) *Registry {
	m := make(map[intent.Chain]signer.Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter != nil {
			m[adapter.Chain()] = adapter
		}
	}
	return &Registry{adapters: m}
}

// Adapter returns the signing adapter for the given chain.
func (r *Registry) Adapter(chain intent.Chain) (signer.Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[chain]
	return adapter, ok
}

// Chains returns the list of chains with a registered adapter.
func (r *Registry) Chains() []intent.Chain {
	if r == nil {
		return nil
	}
	chains := make([]intent.Chain, 0, len(r.adapters))
	for chain := range r.adapters {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// Close releases all adapters managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	type closer interface{ Close() }
	for chain, adapter := range r.adapters {
		if c, ok := adapter.(closer); ok {
			c.Close()
		}
		delete(r.adapters, chain)
	}
}
