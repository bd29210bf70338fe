package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `json:"app" yaml:"app" toml:"app"`
	Providers    map[string]ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
	Agents       map[string]AgentConfig    `json:"agents" yaml:"agents" toml:"agents"`
	Gateways     map[string]GatewayConfig  `json:"gateways" yaml:"gateways" toml:"gateways"`
	Memory       MemoryConfig              `json:"memory" yaml:"memory" toml:"memory"`
	Policy       PolicyConfig              `json:"policy" yaml:"policy" toml:"policy"`
	Logging      LoggingConfig             `json:"logging" yaml:"logging" toml:"logging"`
	Orchestrator OrchestratorConfig        `json:"orchestrator" yaml:"orchestrator" toml:"orchestrator"`
}

type AppConfig struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	// PromptsDir holds *.md files that replace the built-in role instructions.
	PromptsDir string `json:"prompts_dir,omitempty" yaml:"prompts_dir,omitempty" toml:"prompts_dir,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model   string `json:"model" yaml:"model" toml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	// ForceTool pins the model to the output function; some local models reject it.
	ForceTool *bool `json:"force_tool,omitempty" yaml:"force_tool,omitempty" toml:"force_tool,omitempty"`
}

// AgentConfig locates the remote agent serving one capability.
type AgentConfig struct {
	URL         string   `json:"url" yaml:"url" toml:"url"`
	AssistantID string   `json:"assistant_id,omitempty" yaml:"assistant_id,omitempty" toml:"assistant_id,omitempty"`
	APIKey      string   `json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Timeout     Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

type GatewayConfig struct {
	Token        string   `json:"token" yaml:"token" toml:"token"`
	Enabled      bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedUsers []string `json:"allowed_users,omitempty" yaml:"allowed_users,omitempty" toml:"allowed_users,omitempty"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"`
	Path string `json:"path" yaml:"path" toml:"path"`
	// Retention is how long finished sessions are kept; zero keeps them forever.
	Retention Duration `json:"retention" yaml:"retention" toml:"retention"`
}

type PolicyConfig struct {
	DeniedCapabilities []string `json:"denied_capabilities,omitempty" yaml:"denied_capabilities,omitempty" toml:"denied_capabilities,omitempty"`
	DeniedPatterns     []string `json:"denied_patterns,omitempty" yaml:"denied_patterns,omitempty" toml:"denied_patterns,omitempty"`
}

type LoggingConfig struct {
	// Events is "stdout", "stderr", "off", or a file path for JSON-line events.
	Events string `json:"events" yaml:"events" toml:"events"`
	LLMLog string `json:"llm_log" yaml:"llm_log" toml:"llm_log"`
}

type OrchestratorConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" toml:"max_iterations"`
	HistoryLimit  int `json:"history_limit" yaml:"history_limit" toml:"history_limit"`
	// StaleAfter lets recover take over a running session idle this long; zero
	// requires recover --force.
	StaleAfter Duration `json:"stale_after,omitempty" yaml:"stale_after,omitempty" toml:"stale_after,omitempty"`
}

// Duration reads Go duration strings such as "30s" or "720h" from any format.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default is the configuration every loaded file is layered on.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "planexec"},
		Memory: MemoryConfig{
			Type:      "sqlite",
			Path:      "planexec.db",
			Retention: Duration{30 * 24 * time.Hour},
		},
		Logging:      LoggingConfig{Events: "stderr", LLMLog: filepath.Join("logs", "llm.jsonl")},
		Orchestrator: OrchestratorConfig{MaxIterations: 10, HistoryLimit: 10},
	}
}

// Load reads a YAML, TOML or JSON file (chosen by extension), expanding ${VAR}
// references from the environment first.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	data := []byte(os.ExpandEnv(string(raw)))

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for name, a := range c.Agents {
		if _, err := plan.ParseCapability(name); err != nil {
			return fmt.Errorf("agents: %w", err)
		}
		if a.URL == "" {
			return fmt.Errorf("agents.%s: url is required", name)
		}
	}
	for _, name := range c.Policy.DeniedCapabilities {
		if _, err := plan.ParseCapability(name); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	switch c.Memory.Type {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("memory: unknown type %q", c.Memory.Type)
	}
	if c.Orchestrator.MaxIterations < 0 {
		return fmt.Errorf("orchestrator: max_iterations must not be negative")
	}
	if c.Orchestrator.StaleAfter.Duration < 0 {
		return fmt.Errorf("orchestrator: stale_after must not be negative")
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider, by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}

// AgentEndpoints keys the configured agents by capability, resolving long-form names.
func (c *Config) AgentEndpoints() map[plan.Capability]AgentConfig {
	out := make(map[plan.Capability]AgentConfig, len(c.Agents))
	for name, a := range c.Agents {
		if capability, err := plan.ParseCapability(name); err == nil {
			out[capability] = a
		}
	}
	return out
}

// DeniedCapabilities returns the policy deny list as canonical capability tags.
func (c *Config) DeniedCapabilities() []string {
	var out []string
	for _, name := range c.Policy.DeniedCapabilities {
		if capability, err := plan.ParseCapability(name); err == nil {
			out = append(out, string(capability))
		}
	}
	return out
}
