package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Empty(t, cfg.Servers)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfigFile(t, `
llm:
  provider: anthropic
  model: claude-sonnet-4-5
token_store: /tmp/tokens.json
servers:
  - name: github
    url: https://mcp.github.example.com
    oauth:
      client_id: my-client
      scopes: [read, write]
      redirect_port: 9090
  - name: plain
    url: https://plain.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, "/tmp/tokens.json", cfg.TokenStore)
	require.Len(t, cfg.Servers, 2)

	github := cfg.Server("github")
	require.NotNil(t, github)
	require.NotNil(t, github.OAuth)
	assert.Equal(t, "my-client", github.OAuth.ClientID)
	assert.Equal(t, []string{"read", "write"}, github.OAuth.Scopes)
	assert.Equal(t, 9090, github.OAuth.RedirectPort)

	plain := cfg.Server("plain")
	require.NotNil(t, plain)
	assert.Nil(t, plain.OAuth)

	assert.Nil(t, cfg.Server("unknown"))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "llm: [this is not\n  a mapping")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
llm:
  provider: openai
  model: gpt-4o
`)

	t.Setenv(EnvProvider, "ollama")
	t.Setenv(EnvModel, "llama3.3")
	t.Setenv(EnvBaseURL, "http://localhost:1234/v1")
	t.Setenv(EnvTokenStore, "/tmp/override-tokens.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.3", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "/tmp/override-tokens.json", cfg.TokenStore)
}

func TestLoad_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv(EnvModel, "gpt-4o-mini")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing server name",
			content: `
servers:
  - url: https://a.example.com
`,
		},
		{
			name: "missing server url",
			content: `
servers:
  - name: a
`,
		},
		{
			name: "duplicate server name",
			content: `
servers:
  - name: a
    url: https://a.example.com
  - name: a
    url: https://b.example.com
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}
