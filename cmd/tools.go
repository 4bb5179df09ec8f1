package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mcpchat/internal/agent"
	"mcpchat/internal/config"
)

var toolsServer string

// newToolsCmd creates the tools command group.
func newToolsCmd() *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke MCP server tools",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tools from the configured MCP servers",
		Long: `List the tools discovered on the configured MCP servers.

Examples:
  mcpchat tools list                   # All servers
  mcpchat tools list --server github   # One server`,
		RunE: runToolsList,
	}
	listCmd.Flags().StringVarP(&toolsServer, "server", "s", "", "only list tools from this server")

	callCmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool by its qualified name",
		Long: `Invoke a tool and print its text result. Tool names are qualified
with the server name as shown by 'mcpchat tools list'.

Examples:
  mcpchat tools call github_search_issues --args '{"query":"is:open"}'`,
		Args: cobra.ExactArgs(1),
		RunE: runToolsCall,
	}
	callCmd.Flags().String("args", "{}", "tool arguments as a JSON object")

	toolsCmd.AddCommand(listCmd)
	toolsCmd.AddCommand(callCmd)
	return toolsCmd
}

// connectSession connects to the configured servers, optionally restricted
// to one server name.
func connectSession(cmd *cobra.Command, onlyServer string) (*agent.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if onlyServer != "" {
		srv := cfg.Server(onlyServer)
		if srv == nil {
			return nil, fmt.Errorf("server %q is not configured", onlyServer)
		}
		cfg.Servers = []config.ServerConfig{*srv}
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no MCP servers configured")
	}

	logger := newLogger()
	session, err := agent.Connect(cmd.Context(), &cfg, openStore(&cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: run 'mcpchat auth login' and retry", errAuthRequired)
	}
	return session, nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	session, err := connectSession(cmd, toolsServer)
	if err != nil {
		return err
	}
	defer session.Close()

	tools := session.Tools()
	if len(tools) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Server", "Tool", "Description"})
	for _, tool := range tools {
		t.AppendRow(table.Row{tool.Server, tool.QualifiedName, tool.Tool.Description})
	}
	t.Render()
	return nil
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	rawArgs, err := cmd.Flags().GetString("args")
	if err != nil {
		return err
	}
	if !json.Valid([]byte(rawArgs)) {
		return fmt.Errorf("--args must be a valid JSON object")
	}

	session, err := connectSession(cmd, "")
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.CallTool(cmd.Context(), args[0], json.RawMessage(rawArgs))
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}
