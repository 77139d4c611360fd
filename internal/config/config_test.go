package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "providers": [
    {"name": "cerebras", "base_url": "https://api.cerebras.ai/v1", "model": "llama3.1-8b", "api_key_env": "CEREBRAS_API_KEY"}
  ],
  "signer": {"chain_config": "chains.yaml"}
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %q", cfg.Server.Address)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].TimeoutSeconds != 8 {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
	if cfg.Signer.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chain config must resolve relative to the config file: %q", cfg.Signer.ChainConfig)
	}
	if cfg.History.Driver != "memory" || cfg.Events.Driver != "memory" {
		t.Fatalf("unexpected backend defaults: %q / %q", cfg.History.Driver, cfg.Events.Driver)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestProviderAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-test")
	p := ProviderConfig{APIKeyEnv: "TEST_PROVIDER_KEY"}
	if p.APIKey() != "sk-test" {
		t.Fatalf("unexpected api key: %q", p.APIKey())
	}
	if (ProviderConfig{}).APIKey() != "" {
		t.Fatalf("missing env name must yield empty key")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
