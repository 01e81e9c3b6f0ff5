package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Cache    CacheConfig    `toml:"cache"`
	Memory   MemoryConfig   `toml:"memory"`
	Agent    AgentConfig    `toml:"agent"`
	Safety   SafetyConfig   `toml:"safety"`
	Tools    ToolsConfig    `toml:"tools"`
	Observer ObserverConfig `toml:"observer"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type CacheConfig struct {
	Kind       string `toml:"kind"` // "memory" or "badger"
	Dir        string `toml:"dir"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

type MemoryConfig struct {
	Kind        string `toml:"kind"` // "sqlite" or "postgres"
	Path        string `toml:"path"` // sqlite database file
	PostgresDSN string `toml:"postgres_dsn"`
}

type AgentConfig struct {
	ContextWindow int    `toml:"context_window"`
	WorkspacePath string `toml:"workspace_path"`
}

type SafetyConfig struct {
	BlockPhrases  []string `toml:"block_phrases"`
	BlockPatterns []string `toml:"block_patterns"`
	RedactEmails  bool     `toml:"redact_emails"`
}

type ToolsConfig struct {
	PythonBin string `toml:"python_bin"`
	// ShellAllow replaces the shell tool's default command allowlist.
	ShellAllow   []string `toml:"shell_allow"`
	ShellTimeout int      `toml:"shell_timeout"` // seconds
	EnableShell  bool     `toml:"enable_shell"`
	EnablePython bool     `toml:"enable_python"`
	EnableFetch  bool     `toml:"enable_fetch"`
	EnablePDF    bool     `toml:"enable_pdf"`
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Backend: BackendConfig{BaseURL: "http://localhost:8000/v1", Model: "nova-v1"},
		Cache:   CacheConfig{Kind: "memory", TTLSeconds: 3600},
		Memory:  MemoryConfig{Kind: "sqlite", Path: "nova.db"},
		Agent: AgentConfig{
			ContextWindow: 2048,
			WorkspacePath: filepath.Join(home, "nova-workspace"),
		},
		Safety: SafetyConfig{RedactEmails: true},
		Tools: ToolsConfig{
			PythonBin:    "python3",
			ShellTimeout: 30,
			EnableShell:  true,
			EnablePython: true,
		},
		Observer: ObserverConfig{ServiceName: "nova"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "nova.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("NOVA_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("NOVA_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("NOVA_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("NOVA_POSTGRES_DSN"); v != "" {
		cfg.Memory.Kind = "postgres"
		cfg.Memory.PostgresDSN = v
	}
	if v := os.Getenv("NOVA_WORKSPACE"); v != "" {
		cfg.Agent.WorkspacePath = v
	}
	if os.Getenv("NOVA_OBSERVER_ENABLED") == "true" || os.Getenv("NOVA_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Cache.Kind == "badger" && cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.Agent.WorkspacePath, "cache")
	}
	if cfg.Observer.ServiceName == "" {
		cfg.Observer.ServiceName = "nova"
	}

	return cfg
}
