package main

import (
	"fmt"
	"os"

	"casesync-backend/cmd/casesync-cli/cmd"
)

func main() {
	baseUrl, ok := os.LookupEnv("CASESYNC_BASE_URL")
	if !ok {
		fmt.Println("You should specify the base url of the casesync service in the environment variable CASESYNC_BASE_URL.")
		os.Exit(1)
	}
	cmd.BaseUrl = baseUrl
	cmd.Secret = os.Getenv("CASESYNC_SERVICE_SECRET")

	cmd.Execute()
}
