package cmd

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"casesync-backend/lib/casekey"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	scrapeCmd.Flags().Bool("no-sync", false, "Only print the records, do not store them or download documents.")
	eventsCmd.Flags().Duration("since", 7*24*time.Hour, "How far back to look for notifications.")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(storedCmd)
}

type candidate struct {
	Key          string `json:"key"`
	RawKey       string `json:"raw_key"`
	Title        string `json:"title"`
	Court        string `json:"court"`
	Status       string `json:"case_status"`
	LastActivity string `json:"last_activity"`
}

var searchCmd = &cobra.Command{
	Use:   "search <user id> <case key>",
	Short: "Searches the portal for a case and shows which result would be selected.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, err := casekey.Parse(args[1])
		if err != nil {
			log.Fatal(err)
		}

		var out struct {
			Candidates []candidate `json:"candidates"`
			Selected   *candidate  `json:"selected"`
		}
		found := call(cmd, "POST", "/v1/search-case-history", map[string]string{
			"user_id":      args[0],
			"jurisdiction": key.Jurisdiction,
			"number":       key.Number,
			"year":         key.Year,
			"suffix":       key.Suffix,
		}, &out, true)
		if !found {
			return
		}

		t := newTable(table.Row{"", "Key", "Title", "Court", "Status", "Last activity"})
		for _, c := range out.Candidates {
			marker := ""
			if out.Selected != nil && out.Selected.RawKey == c.RawKey {
				marker = "*"
			}
			t.AppendRow(table.Row{marker, c.RawKey, c.Title, c.Court, c.Status, c.LastActivity})
		}
		t.Render()
		if out.Selected == nil {
			fmt.Println("no result could be selected unambiguously")
		}
	},
}

type counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <user id> <case key>",
	Short: "Scrapes every tab of a case and stores the records.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		noSync, _ := cmd.Flags().GetBool("no-sync")
		sync := !noSync

		var out struct {
			Case struct {
				Key   string `json:"key"`
				Title string `json:"title"`
			} `json:"case"`
			CaseID    string `json:"case_id"`
			Movements []struct {
				Date        string `json:"date"`
				Kind        string `json:"kind"`
				Description string `json:"description"`
				HasDocument bool   `json:"has_document"`
			} `json:"movements"`
			Stats *struct {
				Movements        counts `json:"movements"`
				Documents        counts `json:"documents"`
				Participants     counts `json:"participants"`
				Appeals          counts `json:"appeals"`
				Related          counts `json:"related"`
				DocumentsStored  int    `json:"documents_stored"`
				DocumentsSkipped int    `json:"documents_skipped"`
				DocumentErrors   int    `json:"document_errors"`
				MatchTasks       int    `json:"match_tasks"`
			} `json:"stats"`
		}
		found := call(cmd, "POST", "/v1/scrape-case-history-details", map[string]any{
			"user_id":  args[0],
			"case_key": args[1],
			"sync":     sync,
		}, &out, true)
		if !found {
			return
		}

		fmt.Printf("%s  %s\n", out.Case.Key, out.Case.Title)
		t := newTable(table.Row{"Date", "Kind", "Description", "Document"})
		for _, m := range out.Movements {
			t.AppendRow(table.Row{m.Date, m.Kind, m.Description, m.HasDocument})
		}
		t.Render()

		if out.Stats == nil {
			return
		}
		fmt.Println("case id:", out.CaseID)
		s := newTable(table.Row{"Records", "Created", "Updated"})
		s.AppendRows([]table.Row{
			{"movements", out.Stats.Movements.Created, out.Stats.Movements.Updated},
			{"documents", out.Stats.Documents.Created, out.Stats.Documents.Updated},
			{"participants", out.Stats.Participants.Created, out.Stats.Participants.Updated},
			{"appeals", out.Stats.Appeals.Created, out.Stats.Appeals.Updated},
			{"related", out.Stats.Related.Created, out.Stats.Related.Updated},
		})
		s.Render()
		fmt.Printf(
			"documents stored: %d, skipped: %d, failed: %d, match tasks: %d\n",
			out.Stats.DocumentsStored, out.Stats.DocumentsSkipped, out.Stats.DocumentErrors, out.Stats.MatchTasks,
		)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <user id>",
	Short: "Lists the portal notifications received recently.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetDuration("since")

		var out struct {
			Events []struct {
				Date        time.Time `json:"date"`
				CaseKey     string    `json:"case_key"`
				Description string    `json:"description"`
			} `json:"events"`
			Watermark time.Time `json:"watermark"`
		}
		call(cmd, "POST", "/v1/scrape-events", map[string]any{
			"user_id": args[0],
			"since":   time.Now().Add(-since),
		}, &out, false)

		t := newTable(table.Row{"Date", "Case", "Description"})
		for _, e := range out.Events {
			t.AppendRow(table.Row{e.Date.Format(time.DateTime), e.CaseKey, e.Description})
		}
		t.Render()
		fmt.Println("watermark:", out.Watermark.Format(time.RFC3339))
	},
}

var casesCmd = &cobra.Command{
	Use:   "cases <user id>",
	Short: "Lists the cases stored for a user.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Cases []struct {
				ID           string    `json:"id"`
				Key          string    `json:"key"`
				Title        string    `json:"title"`
				LastSyncedAt time.Time `json:"last_synced_at"`
			} `json:"cases"`
		}
		call(cmd, "GET", "/v1/cases?user_id="+url.QueryEscape(args[0]), nil, &out, false)

		t := newTable(table.Row{"Id", "Key", "Title", "Last synced"})
		for _, c := range out.Cases {
			t.AppendRow(table.Row{c.ID, c.Key, c.Title, c.LastSyncedAt.Format(time.ANSIC)})
		}
		t.Render()
	},
}

var storedCmd = &cobra.Command{
	Use:   "stored <user id> <case key>",
	Short: "Shows the last synced copy of a case without contacting the portal.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			CaseID    string `json:"case_id"`
			Key       string `json:"key"`
			Title     string `json:"title"`
			Movements []struct {
				Date        string `json:"date"`
				Description string `json:"description"`
				DocumentID  string `json:"document_id"`
			} `json:"movements"`
			Participants []struct {
				Name           string `json:"name"`
				Role           string `json:"role"`
				DocumentNumber string `json:"document_number"`
			} `json:"participants"`
		}
		query := url.Values{"user_id": {args[0]}, "case_key": {args[1]}}
		if !call(cmd, "GET", "/v1/stored-case?"+query.Encode(), nil, &out, true) {
			return
		}

		fmt.Printf("%s  %s\n%s\n\n", out.Key, out.CaseID, out.Title)
		t := newTable(table.Row{"Date", "Movement", "Document"})
		for _, m := range out.Movements {
			t.AppendRow(table.Row{m.Date, m.Description, m.DocumentID})
		}
		t.Render()

		t = newTable(table.Row{"Participant", "Role", "Document"})
		for _, p := range out.Participants {
			t.AppendRow(table.Row{p.Name, p.Role, p.DocumentNumber})
		}
		t.Render()
	},
}
