package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcpchat/internal/agent"
	"mcpchat/internal/llm"
)

// newChatCmd creates the interactive chat command, the main workflow of
// mcpchat.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the configured LLM provider.

All configured MCP servers are connected first; their tools are offered
to the model, and tool calls requested by the model are executed against
the owning server. Servers that cannot be authorized are skipped with a
warning.

Examples:
  mcpchat chat                         # Use the configured provider
  MCPCHAT_PROVIDER=ollama mcpchat chat # Override the provider`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider, err := llm.New(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		return err
	}

	logger := newLogger()
	store := openStore(&cfg)

	session, err := agent.Connect(cmd.Context(), &cfg, store, logger)
	if err != nil {
		return fmt.Errorf("%w: run 'mcpchat auth login' and retry", errAuthRequired)
	}
	defer session.Close()
	logger.Debug("Session %s started", session.ID())

	// Let a login or logout in another terminal show up mid-session.
	watcher := agent.NewTokenWatcher(store.Path(), func() {
		logger.Info("Token store changed; restart the session to pick up new credentials")
	})
	if err := watcher.Start(); err != nil {
		logger.Debug("Token store watching unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	repl, err := agent.NewREPL(session, provider, logger)
	if err != nil {
		return err
	}
	return repl.Run(cmd.Context())
}
