// Package config provides centralized configuration management for the
// NexusAI runtime. Configuration is loaded from a JSON file; provider and
// service credentials are resolved from environment variables so secrets
// never live in the file itself.
package config
