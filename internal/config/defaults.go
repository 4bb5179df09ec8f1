package config

const (
	// DefaultProvider is the LLM provider used when none is configured.
	DefaultProvider = ProviderOpenAI

	// DefaultModel is the model requested when none is configured.
	DefaultModel = "gpt-4o"
)

// GetDefaultConfig returns the default configuration: the default provider
// and model, no servers, and the default token store path.
func GetDefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider: DefaultProvider,
			Model:    DefaultModel,
		},
	}
}
