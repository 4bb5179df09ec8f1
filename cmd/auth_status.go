package cmd

import (
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mcpchat/internal/config"
	"mcpchat/internal/oauth"
)

// newAuthStatusCmd creates the auth status command.
func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status per server",
		Long: `Show the stored token state for every configured server and every
server present in the token store.`,
		RunE: runAuthStatus,
	}
}

// statusRow is one rendered line of auth status.
type statusRow struct {
	Server   string
	State    string
	Expires  string
	ClientID string
}

const (
	stateAuthenticated   = "authenticated"
	stateExpired         = "expired"
	stateUnauthenticated = "not authenticated"
)

// buildStatusRows merges configured servers with stored records. Servers
// appear even when no record exists; records survive even when the server
// was removed from the config.
func buildStatusRows(cfg *config.Config, store *oauth.TokenStore) []statusRow {
	names := make(map[string]bool)
	for _, srv := range cfg.Servers {
		names[srv.Name] = true
	}
	for _, name := range store.Names() {
		names[name] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	rows := make([]statusRow, 0, len(sorted))
	for _, name := range sorted {
		row := statusRow{Server: name, State: stateUnauthenticated, Expires: "-", ClientID: "-"}

		if rec, ok := store.Get(name); ok {
			if rec.ClientID != "" {
				row.ClientID = rec.ClientID
			}
			if rec.AccessToken != "" {
				if rec.HasValidAccessToken() {
					row.State = stateAuthenticated
				} else {
					row.State = stateExpired
				}
				if rec.ExpiresAt.IsZero() {
					row.Expires = "never"
				} else {
					row.Expires = rec.ExpiresAt.Local().Format("2006-01-02 15:04:05")
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := openStore(&cfg)

	rows := buildStatusRows(&cfg, store)
	if len(rows) == 0 {
		cmd.Println("No servers configured and no stored tokens.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Server", "Status", "Expires", "Client ID"})
	for _, row := range rows {
		state := row.State
		if !flagNoColor {
			switch row.State {
			case stateAuthenticated:
				state = text.FgGreen.Sprint(row.State)
			case stateExpired:
				state = text.FgYellow.Sprint(row.State)
			default:
				state = text.FgRed.Sprint(row.State)
			}
		}
		t.AppendRow(table.Row{row.Server, state, row.Expires, row.ClientID})
	}
	t.Render()
	return nil
}
