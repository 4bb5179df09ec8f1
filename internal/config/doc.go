// Package config loads mcpchat configuration from
// ~/.config/mcpchat/config.yaml with environment overrides.
//
// The file selects the LLM provider and model and lists the remote MCP
// servers to connect to, each with optional explicit OAuth settings.
// API keys are read from the environment only and never appear in the
// configuration file.
package config
