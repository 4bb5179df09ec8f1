package config

// Config is the top-level configuration structure for mcpchat.
type Config struct {
	LLM        LLMConfig      `yaml:"llm"`
	TokenStore string         `yaml:"token_store,omitempty"`
	Servers    []ServerConfig `yaml:"servers"`
}

// Supported LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// LLMConfig selects the chat model. API keys are never read from the
// config file; providers take them from the environment.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"` // openai, anthropic, or ollama
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"` // OpenAI-compatible endpoints (LM Studio, vLLM)
}

// ServerConfig describes one remote MCP server.
type ServerConfig struct {
	Name  string       `yaml:"name"`
	URL   string       `yaml:"url"`
	OAuth *OAuthConfig `yaml:"oauth,omitempty"`
}

// OAuthConfig carries explicit per-server OAuth settings. Every field is
// optional; anything left empty is discovered or falls back to convention
// endpoints.
type OAuthConfig struct {
	AuthURL      string   `yaml:"auth_url,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	RedirectPort int      `yaml:"redirect_port,omitempty"`
}

// Server returns the configuration for the named server, or nil.
func (c *Config) Server(name string) *ServerConfig {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i]
		}
	}
	return nil
}
