package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onesmallpr/questboard/internal/models"
	"github.com/onesmallpr/questboard/pkg/client"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List quests on the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rank, _ := cmd.Flags().GetString("rank")
		element, _ := cmd.Flags().GetString("element")
		label, _ := cmd.Flags().GetString("label")

		list, err := newClient(cmd).ListQuests(cmd.Context(), client.ListOptions{
			Rank:    rank,
			Element: element,
			Label:   label,
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), list)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRANK\tELEMENT\tXP\tREPO\tTITLE")
		for _, q := range list.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", q.ID, q.Rank, q.Element, q.Rewards.XP, q.Repo, q.Title)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d quests, refreshed %s\n", list.Total, list.LastRefreshedAt)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <quest-id>",
	Short: "Show one quest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := newClient(cmd).GetQuest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), q)
		}
		printQuest(cmd, q)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the catalog from upstream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient(cmd).Refresh(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		if !res.Refreshed {
			fmt.Fprintf(cmd.OutOrStdout(), "refresh failed, keeping %d quests\n", res.Count)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog refreshed: %d quests\n", res.Count)
		return nil
	},
}

var quizCmd = &cobra.Command{
	Use:   "quiz <quest-id>",
	Short: "Generate the trial for a quest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skill, _ := cmd.Flags().GetString("skill-level")

		items, err := newClient(cmd).Assessment(cmd.Context(), args[0], skill)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), items)
		}

		out := cmd.OutOrStdout()
		for _, item := range items {
			fmt.Fprintf(out, "%d. %s\n", item.ID, item.Question)
			for i, opt := range item.Options {
				fmt.Fprintf(out, "   [%d] %s\n", i, opt)
			}
		}
		return nil
	},
}

var protocolCmd = &cobra.Command{
	Use:   "protocol <quest-id>",
	Short: "Generate the protocol document for a quest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skill, _ := cmd.Flags().GetString("skill-level")
		outDir, _ := cmd.Flags().GetString("out")

		c := newClient(cmd)
		if outDir == "" {
			p, err := c.Protocol(cmd.Context(), args[0], skill)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprint(cmd.OutOrStdout(), p.Content)
			return nil
		}

		dl, err := c.DownloadProtocol(cmd.Context(), args[0], skill)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, filepath.Base(dl.Filename))
		if err := os.WriteFile(path, dl.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write protocol: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "protocol written to %s\n", path)
		return nil
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <quest-id> <answer>...",
	Short: "Submit trial answers and accept a quest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := parseAnswers(args[1:])
		if err != nil {
			return err
		}

		res, err := newClient(cmd).Accept(cmd.Context(), args[0], answers)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(cmd.OutOrStdout(), res)
		}

		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		if res.ProtocolURL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "protocol: %s\n", res.ProtocolURL)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("rank", "", "filter by rank (E, D, C, B)")
	listCmd.Flags().String("element", "", "filter by element")
	listCmd.Flags().String("label", "", "filter by label")

	for _, c := range []*cobra.Command{quizCmd, protocolCmd} {
		c.Flags().String("skill-level", "", "skill level used for generation")
	}
	protocolCmd.Flags().String("out", "", "download the protocol file into this directory")

	rootCmd.AddCommand(listCmd, getCmd, refreshCmd, quizCmd, protocolCmd, acceptCmd)
}

func parseAnswers(args []string) ([]int, error) {
	answers := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("answer %q is not an option index", a)
		}
		answers = append(answers, n)
	}
	return answers, nil
}

func printQuest(cmd *cobra.Command, q *models.Quest) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[%s] %s\n", q.Rank, q.Title)
	fmt.Fprintf(out, "repo:     %s\n", q.Repo)
	fmt.Fprintf(out, "url:      %s\n", q.URL)
	fmt.Fprintf(out, "element:  %s\n", q.Element)
	fmt.Fprintf(out, "labels:   %s\n", strings.Join(q.Labels, ", "))
	fmt.Fprintf(out, "rewards:  %d XP, %d contribution\n", q.Rewards.XP, q.Rewards.Contribution)
	fmt.Fprintf(out, "estimate: %s\n", q.Analysis.EstimatedTime)
	if q.Description != "" {
		fmt.Fprintf(out, "\n%s\n", q.Description)
	}
}
