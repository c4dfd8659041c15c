package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	loginCmd.Flags().String("password", "", "Portal password, read from CASESYNC_PORTAL_PASSWORD when empty.")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(sessionCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <user id> <portal username>",
	Short: "Logs into the portal on behalf of a user and stores the credentials.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("CASESYNC_PORTAL_PASSWORD")
		}
		if password == "" {
			log.Fatal("a password is required")
		}

		call(cmd, "POST", "/v1/reauthenticate", map[string]string{
			"user_id":  args[0],
			"username": args[1],
			"password": password,
		}, nil, false)
		fmt.Println("session stored for", args[0])
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <user id>",
	Short: "Forgets a user's portal session and credentials.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		call(cmd, "DELETE", "/v1/sessions/"+args[0], nil, nil, false)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session <user id>",
	Short: "Prints the state of a user's portal session.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Session        string `json:"session"`
			HasCredentials bool   `json:"has_credentials"`
			NeedsReauth    bool   `json:"needs_reauth"`
			SyncErrorCount int64  `json:"sync_error_count"`
			LastError      string `json:"last_error"`
		}
		call(cmd, "GET", "/v1/sessions/"+args[0], nil, &out, false)

		t := newTable(table.Row{"Session", "Credentials", "Needs reauth", "Errors", "Last error"})
		t.AppendRow(table.Row{out.Session, out.HasCredentials, out.NeedsReauth, out.SyncErrorCount, out.LastError})
		t.Render()
	},
}
