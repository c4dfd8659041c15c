package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	linkCmd.PersistentFlags().String("actor", "", "Recorded in the audit log, defaults to $USER.")
	linkCmd.AddCommand(linkConfirmCmd, linkManualCmd, linkUnlinkCmd, linkIgnoreCmd, linkCreateClientCmd, linkAuditCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(rematchCmd)
	rootCmd.AddCommand(clientsCmd)
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Lists every client, including the ones created by matching.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Clients []struct {
				ID          string `json:"id"`
				Kind        string `json:"kind"`
				DisplayName string `json:"display_name"`
				Dni         string `json:"dni"`
				Cuit        string `json:"cuit"`
				AutoCreated bool   `json:"auto_created"`
			} `json:"clients"`
		}
		call(cmd, "GET", "/v1/clients", nil, &out, false)

		t := newTable(table.Row{"Id", "Kind", "Name", "DNI", "CUIT", "Auto"})
		for _, c := range out.Clients {
			t.AppendRow(table.Row{c.ID, c.Kind, c.DisplayName, c.Dni, c.Cuit, c.AutoCreated})
		}
		t.Render()
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <case id>",
	Short: "Lists the participants of a case with the client each one is linked to.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Links []struct {
				ParticipantID string  `json:"participant_id"`
				Name          string  `json:"name"`
				Role          string  `json:"role"`
				ClientID      string  `json:"client_id"`
				LinkType      string  `json:"link_type"`
				Confidence    float64 `json:"confidence"`
			} `json:"links"`
		}
		call(cmd, "GET", "/v1/cases/"+args[0]+"/links", nil, &out, false)

		t := newTable(table.Row{"Participant", "Name", "Role", "Client", "Link", "Confidence"})
		for _, l := range out.Links {
			confidence := ""
			if l.LinkType != "" {
				confidence = fmt.Sprintf("%.2f", l.Confidence)
			}
			t.AppendRow(table.Row{l.ParticipantID, l.Name, l.Role, l.ClientID, l.LinkType, confidence})
		}
		t.Render()
	},
}

var rematchCmd = &cobra.Command{
	Use:   "rematch <case id>",
	Short: "Runs the matcher over every participant of a case.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Stats struct {
				Processed int `json:"processed"`
				Linked    int `json:"linked"`
				Suggested int `json:"suggested"`
				Created   int `json:"created"`
				Skipped   int `json:"skipped"`
			} `json:"stats"`
		}
		call(cmd, "POST", "/v1/cases/"+args[0]+"/rematch", nil, &out, false)

		t := newTable(table.Row{"Processed", "Linked", "Suggested", "Created", "Skipped"})
		t.AppendRow(table.Row{out.Stats.Processed, out.Stats.Linked, out.Stats.Suggested, out.Stats.Created, out.Stats.Skipped})
		t.Render()
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Records a human decision about a participant's client link.",
}

func actor(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("actor")
	if name == "" {
		return os.Getenv("USER")
	}
	return name
}

func decide(action string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		body := map[string]string{"actor": actor(cmd)}
		if len(args) > 1 {
			body["client_id"] = args[1]
		}
		call(cmd, "POST", "/v1/participants/"+args[0]+"/"+action, body, nil, false)
	}
}

var linkConfirmCmd = &cobra.Command{
	Use:   "confirm <participant id>",
	Short: "Confirms the participant's current link.",
	Args:  cobra.ExactArgs(1),
	Run:   decide("confirm"),
}

var linkManualCmd = &cobra.Command{
	Use:   "manual <participant id> <client id>",
	Short: "Links the participant to a client chosen by hand.",
	Args:  cobra.ExactArgs(2),
	Run:   decide("manual-link"),
}

var linkUnlinkCmd = &cobra.Command{
	Use:   "unlink <participant id>",
	Short: "Removes the participant's link.",
	Args:  cobra.ExactArgs(1),
	Run:   decide("unlink"),
}

var linkIgnoreCmd = &cobra.Command{
	Use:   "ignore <participant id>",
	Short: "Excludes the participant from automatic matching.",
	Args:  cobra.ExactArgs(1),
	Run:   decide("ignore"),
}

var linkCreateClientCmd = &cobra.Command{
	Use:   "create-client <participant id>",
	Short: "Creates a client from the participant and links them.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Client struct {
				ID          string `json:"id"`
				Kind        string `json:"kind"`
				DisplayName string `json:"display_name"`
			} `json:"client"`
		}
		call(cmd, "POST", "/v1/participants/"+args[0]+"/create-client", map[string]string{"actor": actor(cmd)}, &out, false)
		fmt.Printf("created %s client %s (%s)\n", out.Client.Kind, out.Client.DisplayName, out.Client.ID)
	},
}

var linkAuditCmd = &cobra.Command{
	Use:   "audit <participant id>",
	Short: "Prints the link history of a participant.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Audit []struct {
				ClientID     string  `json:"client_id"`
				PreviousType string  `json:"previous_type"`
				NewType      string  `json:"new_type"`
				Action       string  `json:"action"`
				Actor        string  `json:"actor"`
				Confidence   float64 `json:"confidence"`
				CreatedAt    int64   `json:"created_at"`
			} `json:"audit"`
		}
		call(cmd, "GET", "/v1/participants/"+args[0]+"/audit", nil, &out, false)

		t := newTable(table.Row{"When", "Action", "Actor", "Client", "From", "To", "Confidence"})
		for _, a := range out.Audit {
			t.AppendRow(table.Row{
				time.Unix(a.CreatedAt, 0).Format(time.ANSIC),
				a.Action, a.Actor, a.ClientID, a.PreviousType, a.NewType,
				fmt.Sprintf("%.2f", a.Confidence),
			})
		}
		t.Render()
	},
}
