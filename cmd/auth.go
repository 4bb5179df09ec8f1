package cmd

import (
	"github.com/spf13/cobra"
)

// newAuthCmd creates the auth command group.
func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication for MCP servers",
		Long: `Manage OAuth authentication for the configured MCP servers.

The auth command group provides subcommands to login, check status, and
remove stored tokens for MCP servers that require OAuth.

Examples:
  mcpchat auth login github            # Login to one server
  mcpchat auth login --all             # Login to every configured server
  mcpchat auth status                  # Show token status per server
  mcpchat auth logout github           # Remove one server's tokens
  mcpchat auth logout --all --yes      # Remove all tokens without confirmation`,
	}

	authCmd.AddCommand(newAuthLoginCmd())
	authCmd.AddCommand(newAuthStatusCmd())
	authCmd.AddCommand(newAuthLogoutCmd())
	return authCmd
}
