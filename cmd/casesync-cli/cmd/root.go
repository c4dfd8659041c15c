package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"casesync-backend/lib/util/serviceutil"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	BaseUrl string
	Secret  string
)

var client *resty.Client

var rootCmd = &cobra.Command{
	Use:   "casesync-cli",
	Short: "casesync-cli is a CLI interface for the casesync scraping and matching service.",
}

func Execute() {
	client = resty.New().
		SetBaseURL(BaseUrl).
		SetHeader(serviceutil.SecretHeader, Secret).
		SetHeader("content-type", "application/json")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type response struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// call sends body to path and decodes the reply into out. Replies other
// than OK end the program, NOT_FOUND only when allowNotFound is unset.
func call(cmd *cobra.Command, method, path string, body, out any, allowNotFound bool) bool {
	req := client.R().SetContext(cmd.Context())
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		log.Fatal(err)
	}

	var status response
	err = json.Unmarshal(res.Body(), &status)
	if err != nil {
		log.Fatalf("unexpected reply (%d): %s", res.StatusCode(), res.String())
	}
	switch status.Status {
	case "OK":
	case "NOT_FOUND":
		if allowNotFound {
			fmt.Println("not found:", status.Reason)
			return false
		}
		log.Fatal("not found: ", status.Reason)
	case "AUTH_REQUIRED":
		log.Fatal("the portal account has to be reconnected: ", status.Reason)
	default:
		log.Fatalf("%s: %s", status.Code, status.Reason)
	}

	if out != nil {
		err = json.Unmarshal(res.Body(), out)
		if err != nil {
			log.Fatal(err)
		}
	}
	return true
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	t.SetStyle(table.StyleRounded)
	return t
}
