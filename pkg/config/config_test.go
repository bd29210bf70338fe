package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const yamlConfig = `
providers:
  openai:
    api_key: ${PLANEXEC_TEST_KEY}
    model: o3-mini
    enabled: true
agents:
  customer_info:
    url: https://customer.example
  music_catalog_information_subagent:
    url: https://catalog.example
    timeout: 45s
gateways:
  telegram:
    token: tg-token
    enabled: true
memory:
  path: /var/lib/planexec/state.db
  retention: 72h
policy:
  denied_patterns: ["(?i)delete"]
orchestrator:
  max_iterations: 4
  stale_after: 15m
`

const tomlConfig = `
[providers.anthropic]
api_key = "sk-ant"
model = "claude"
enabled = true

[agents.invoice_info]
url = "https://invoice.example"
api_key = "lsv2"

[memory]
type = "memory"
retention = "1h"
`

const jsonConfig = `{
  "providers": {"ollama": {"model": "llama3", "base_url": "http://localhost:11434", "enabled": true, "force_tool": false}},
  "agents": {"catalog_info": {"url": "http://catalog"}},
  "gateways": {"discord": {"token": "d", "enabled": true}}
}`

func TestLoadYAML(t *testing.T) {
	t.Setenv("PLANEXEC_TEST_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, "planexec.yaml", yamlConfig))
	require.NoError(t, err)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-from-env", p.APIKey)

	endpoints := cfg.AgentEndpoints()
	require.Len(t, endpoints, 2)
	assert.Equal(t, "https://catalog.example", endpoints[plan.CatalogInfo].URL)
	assert.Equal(t, 45*time.Second, endpoints[plan.CatalogInfo].Timeout.Duration)

	tg, ok := cfg.GetTelegramConfig()
	assert.True(t, ok)
	assert.Equal(t, "tg-token", tg.Token)
	_, ok = cfg.GetDiscordConfig()
	assert.False(t, ok)

	assert.Equal(t, 72*time.Hour, cfg.Memory.Retention.Duration)
	assert.Equal(t, "sqlite", cfg.Memory.Type, "defaults survive partial sections")
	assert.Equal(t, 4, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 10, cfg.Orchestrator.HistoryLimit)
	assert.Equal(t, 15*time.Minute, cfg.Orchestrator.StaleAfter.Duration)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "planexec.toml", tomlConfig))
	require.NoError(t, err)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "anthropic", name)
	assert.Equal(t, "claude", p.Model)
	assert.Equal(t, "lsv2", cfg.AgentEndpoints()[plan.InvoiceInfo].APIKey)
	assert.Equal(t, "memory", cfg.Memory.Type)
	assert.Equal(t, time.Hour, cfg.Memory.Retention.Duration)
	assert.Equal(t, 10, cfg.Orchestrator.MaxIterations)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", jsonConfig))
	require.NoError(t, err)

	_, p := cfg.GetDefaultProvider()
	require.NotNil(t, p.ForceTool)
	assert.False(t, *p.ForceTool)
	_, ok := cfg.GetDiscordConfig()
	assert.True(t, ok)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown capability", file: "c.yaml", body: "agents:\n  billing:\n    url: http://x\n"},
		{name: "missing url", file: "c.yaml", body: "agents:\n  customer_info: {}\n"},
		{name: "bad duration", file: "c.yaml", body: "memory:\n  retention: soon\n"},
		{name: "negative iterations", file: "c.toml", body: "[orchestrator]\nmax_iterations = -1\n"},
		{name: "negative stale_after", file: "c.yaml", body: "orchestrator:\n  stale_after: -1m\n"},
		{name: "unknown memory", file: "c.json", body: `{"memory": {"type": "redis"}}`},
		{name: "unknown field", file: "c.json", body: `{"tools": {}}`},
		{name: "bad policy capability", file: "c.yaml", body: "policy:\n  denied_capabilities: [billing]\n"},
		{name: "unsupported format", file: "c.ini", body: "x=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDeniedCapabilitiesAreCanonical(t *testing.T) {
	cfg := Default()
	cfg.Policy.DeniedCapabilities = []string{"customer_information_subagent", "invoice_info"}
	assert.Equal(t, []string{"customer_info", "invoice_info"}, cfg.DeniedCapabilities())
}
