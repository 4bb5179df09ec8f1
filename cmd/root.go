package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"mcpchat/internal/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// errAuthRequired marks failures that a successful `mcpchat auth login`
// would resolve.
var errAuthRequired = errors.New("authentication required")

// Global flags shared by all commands.
var (
	flagConfig  string
	flagVerbose bool
	flagNoColor bool
)

// rootCmd is the base command for the mcpchat application.
var rootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "Chat with LLMs backed by remote MCP tool servers",
	Long: `mcpchat is a terminal chat client that connects LLM providers to
remote MCP (Model Context Protocol) tool servers. Servers that require
OAuth are handled automatically: mcpchat discovers the provider,
registers itself when the server supports dynamic registration, and runs
the browser-based authorization flow with PKCE.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpchat version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the exit code based on the error type. This
// provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, errAuthRequired) {
		return ExitCodeAuthRequired
	}

	var callbackErr *oauth.CallbackError
	if errors.As(err, &callbackErr) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrCallbackTimeout) ||
		errors.Is(err, oauth.ErrExchangeFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default is $HOME/.config/mcpchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
