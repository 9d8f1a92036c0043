package cmd

import (
	"fmt"
	"strings"

	"github.com/danielolaszy/poker/internal/poker"
	"github.com/spf13/cobra"
)

// fragmentSnapshot parses a rendered server fragment.
func fragmentSnapshot(src string) (poker.Snapshot, error) {
	page, err := poker.NewPage(src)
	if err != nil {
		return poker.Snapshot{}, fmt.Errorf("failed to parse response: %w", err)
	}
	v := page.View("body")
	if v == nil {
		return poker.Snapshot{}, nil
	}
	return v.Snapshot(), nil
}

var votersCmd = &cobra.Command{
	Use:   "voters KEY",
	Short: "List who has voted, without revealing the votes",
	Long: `List the users who have voted in the planning poker session of an issue.
The values stay hidden until the session ends.

Example:
  poker voters PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		body, err := s.transport.FetchVoters(cmd.Context(), s.issueKey)
		if err != nil {
			return fmt.Errorf("failed to fetch voters of %s: %w", s.issueKey, err)
		}
		snap, err := fragmentSnapshot(body)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(snap.Voters) == 0 {
			fmt.Fprintf(out, "Nobody has voted on %s yet\n", s.issueKey)
			return nil
		}
		fmt.Fprintf(out, "Voted on %s: %s\n", s.issueKey, strings.Join(snap.Voters, ", "))
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results KEY",
	Short: "Show the votes of an ended planning poker session",
	Long: `Show every vote, the statistics and the estimate state of an ended
planning poker session. Votes of an open session are not shown.

Example:
  poker results PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		body, err := s.transport.FetchVotes(cmd.Context(), s.issueKey)
		if err != nil {
			return fmt.Errorf("failed to fetch votes of %s: %w", s.issueKey, err)
		}
		snap, err := fragmentSnapshot(body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Votes on %s\n", s.issueKey)
		printResults(cmd.OutOrStdout(), snap)
		return nil
	},
}
