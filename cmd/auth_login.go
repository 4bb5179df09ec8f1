package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mcpchat/internal/config"
	"mcpchat/internal/oauth"
)

var loginAll bool

// newAuthLoginCmd creates the auth login command.
func newAuthLoginCmd() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login [server]",
		Short: "Authenticate to MCP servers",
		Long: `Run the browser-based OAuth flow for one or all configured servers.

Stored tokens for the server are discarded first, so login always opens
the provider's consent page. Client credentials from a previous dynamic
registration are kept and reused.

Examples:
  mcpchat auth login github            # Login to one server
  mcpchat auth login --all             # Login to every configured server`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuthLogin,
	}
	loginCmd.Flags().BoolVar(&loginAll, "all", false, "login to every configured server")
	return loginCmd
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var targets []config.ServerConfig
	switch {
	case loginAll:
		targets = cfg.Servers
	case len(args) == 1:
		srv := cfg.Server(args[0])
		if srv == nil {
			return fmt.Errorf("server %q is not configured", args[0])
		}
		targets = []config.ServerConfig{*srv}
	default:
		return fmt.Errorf("specify a server name or --all")
	}
	if len(targets) == 0 {
		return fmt.Errorf("no MCP servers configured")
	}

	store := openStore(&cfg)
	logger := newLogger()

	for _, srv := range targets {
		logger.Info("Logging in to %s...", srv.Name)

		// Drop stored tokens so the flow is interactive, keeping client
		// credentials from a previous registration.
		err := store.Update(srv.Name, func(rec *oauth.ServerRecord) {
			rec.AccessToken = ""
			rec.RefreshToken = ""
			rec.ExpiresAt = time.Time{}
		})
		if err != nil {
			return err
		}

		flow, err := oauth.NewFlow(oauth.FlowConfig{
			ServerName: srv.Name,
			ServerURL:  srv.URL,
			OAuth:      oauthConfigFor(&srv),
			Store:      store,
			OnAuthURL: func(url string) {
				logger.Info("Opening browser. If it does not open, visit:\n  %s", url)
			},
		})
		if err != nil {
			return err
		}

		if _, err := flow.Authorize(cmd.Context()); err != nil {
			return fmt.Errorf("login to %s failed: %w", srv.Name, err)
		}
		logger.Success("Authenticated to %s", srv.Name)
	}
	return nil
}
