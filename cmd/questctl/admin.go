package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands (require --api-key when the server sets one)",
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List persisted catalog snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := newClient(cmd).Snapshots(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), list)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tQUESTS\tREFRESHED")
		for _, s := range list.Snapshots {
			fmt.Fprintf(w, "%d\t%d\t%s\n", s.ID, s.QuestCount, s.RefreshedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var purgeCacheCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Drop cached quizzes and protocols",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := newClient(cmd).PurgeCache(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached generations\n", deleted)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	snapshotsCmd.Flags().Int("limit", 0, "maximum number of snapshots")

	adminCmd.AddCommand(snapshotsCmd, purgeCacheCmd)
	rootCmd.AddCommand(adminCmd, healthCmd)
}
