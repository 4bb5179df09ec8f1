package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	logoutAll bool
	logoutYes bool
)

// newAuthLogoutCmd creates the auth logout command.
func newAuthLogoutCmd() *cobra.Command {
	logoutCmd := &cobra.Command{
		Use:   "logout [server]",
		Short: "Remove stored authentication tokens",
		Long: `Remove stored OAuth tokens and client credentials.

Examples:
  mcpchat auth logout github           # Remove one server's record
  mcpchat auth logout --all            # Remove all records (asks first)
  mcpchat auth logout --all --yes      # Remove all records without asking`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuthLogout,
	}
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored record")
	logoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "skip the confirmation prompt")
	return logoutCmd
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := openStore(&cfg)

	var targets []string
	switch {
	case logoutAll:
		targets = store.Names()
		if len(targets) == 0 {
			cmd.Println("No stored tokens.")
			return nil
		}
		if !logoutYes && !confirm(fmt.Sprintf("Remove stored tokens for %d server(s)?", len(targets))) {
			cmd.Println("Aborted.")
			return nil
		}
	case len(args) == 1:
		targets = []string{args[0]}
	default:
		return fmt.Errorf("specify a server name or --all")
	}

	for _, name := range targets {
		if err := store.Delete(name); err != nil {
			return err
		}
		cmd.Printf("Removed stored tokens for %s\n", name)
	}
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
