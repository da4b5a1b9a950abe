package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onesmallpr/questboard/pkg/client"
)

var rootCmd = &cobra.Command{
	Use:           "questctl",
	Short:         "Browse and accept questboard quests",
	Long:          "questctl talks to a questboard server: it lists the quest board, runs trials, fetches protocols and performs operator tasks.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("QUESTBOARD_URL", "http://localhost:8080"), "questboard server URL")
	rootCmd.PersistentFlags().String("api-key", os.Getenv("QUESTBOARD_ADMIN_API_KEY"), "admin API key for refresh and admin commands")
	rootCmd.PersistentFlags().Duration("timeout", 90*time.Second, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON instead of a table")
}

// newClient builds an API client from the persistent flags
func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	return client.NewClient(server,
		client.WithAPIKey(apiKey),
		client.WithTimeout(timeout),
	)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
