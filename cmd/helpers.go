package cmd

import (
	"mcpchat/internal/agent"
	"mcpchat/internal/config"
	"mcpchat/internal/oauth"
)

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (config.Config, error) {
	return config.Load(flagConfig)
}

// openStore opens the token store at the configured path.
func openStore(cfg *config.Config) *oauth.TokenStore {
	path := cfg.TokenStore
	if path == "" {
		path = oauth.DefaultStorePath
	}
	return oauth.NewTokenStore(path)
}

// newLogger creates the terminal logger honoring the global flags.
func newLogger() *agent.Logger {
	return agent.NewLogger(flagVerbose, !flagNoColor)
}

// oauthConfigFor maps a server's YAML OAuth block to the flow configuration.
func oauthConfigFor(srv *config.ServerConfig) *oauth.Config {
	if srv == nil || srv.OAuth == nil {
		return nil
	}
	return &oauth.Config{
		AuthURL:      srv.OAuth.AuthURL,
		TokenURL:     srv.OAuth.TokenURL,
		ClientID:     srv.OAuth.ClientID,
		ClientSecret: srv.OAuth.ClientSecret,
		Scopes:       srv.OAuth.Scopes,
		RedirectPort: srv.OAuth.RedirectPort,
	}
}
