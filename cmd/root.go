// Package cmd provides the command-line interface for the planning poker tool.
package cmd

import (
	"github.com/danielolaszy/poker/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poker",
	Short: "Poker runs instant planning poker sessions for work items",
	Long: `Poker is a CLI tool for instant planning poker. It serves voting sessions
for issue keys and lets team members vote, end a session and apply the agreed
estimate, either from the command line or from an interactive terminal UI.

Applied estimates are written back to JIRA and mirrored to GitHub issues when
those integrations are configured.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().String("url", "", "Poker server URL (overrides POKER_URL)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Login to vote as (overrides POKER_USERNAME)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(votesCmd)
	rootCmd.AddCommand(votersCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(instantCmd)
}

// loadClientConfig loads the configuration and applies flag overrides.
func loadClientConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if url, _ := cmd.Flags().GetString("url"); url != "" {
		cfg.Poker.URL = url
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Poker.Username = user
	}

	if err := config.ValidateClientConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
