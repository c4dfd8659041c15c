package cmd

import (
	"fmt"
	"log"

	"casesync-backend/services/keychain"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

func init() {
	genSecretCmd.Flags().Int("length", 48, "Length of the service secret.")
	rootCmd.AddCommand(genSecretCmd)
}

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Generates a service secret and a keychain encryption key for a new deployment.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		length, _ := cmd.Flags().GetInt("length")
		secret, err := random.String(length)
		if err != nil {
			log.Fatal(err)
		}
		key, err := keychain.GenerateKey()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("CASESYNC_SERVICE_SECRET=" + secret)
		fmt.Println("CASESYNC_KEYCHAIN_KEY=" + key)
	},
}
