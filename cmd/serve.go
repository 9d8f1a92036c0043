package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/github"
	"github.com/danielolaszy/poker/internal/jira"
	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/internal/server"
	"github.com/danielolaszy/poker/internal/session"
	"github.com/danielolaszy/poker/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve planning poker sessions",
	Long: `Serve planning poker sessions over HTTP.

Sessions and votes are stored in SQLite at POKER_DB_PATH. Voters authenticate
with basic auth; POKER_USERS restricts logins to "login:token" pairs.

When JIRA_URL is set, sessions can only be started for existing JIRA issues and
applied estimates are written to JIRA_ESTIMATE_FIELD. When GITHUB_REPOSITORY is
set, applied estimates are also mirrored as an "estimate: N" label on the GitHub
issue whose title starts with "[KEY]".

Example:
  POKER_CSRF_KEY=$(openssl rand -hex 16) poker serve --listen :8090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		if err := config.ValidateServerConfig(cfg); err != nil {
			return err
		}

		repo, err := store.NewSQLite(cfg.Server.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer repo.Close()

		opts, err := integrations(cfg)
		if err != nil {
			return err
		}
		svc := session.NewService(repo, cfg.Poker.Cards, cfg.Server.SessionTTL, opts...)

		srv, err := server.New(svc, cfg.Server)
		if err != nil {
			return err
		}

		logging.Info("starting poker server",
			"listen", cfg.Server.Listen,
			"db_path", cfg.Server.DBPath,
			"cards", cfg.Poker.Cards.String(),
			"session_ttl", cfg.Server.SessionTTL,
			"users", len(cfg.Server.Users))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}

// integrations wires the configured issue trackers into the session service.
// JIRA is the primary estimate target; GitHub is a best-effort mirror.
func integrations(cfg *config.Config) ([]session.Option, error) {
	var opts []session.Option
	var chain session.Chain

	if cfg.Jira.Enabled() {
		jiraClient, err := jira.NewClient(cfg.Jira)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize jira client: %w", err)
		}
		chain.Primary = jiraClient
		opts = append(opts, session.WithIssueLookup(jiraClient))
	}

	if cfg.GitHub.Enabled() {
		githubClient, err := github.NewClient(cfg.GitHub)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize github client: %w", err)
		}
		chain.Mirrors = append(chain.Mirrors, githubClient)
	}

	if chain.Primary == nil && len(chain.Mirrors) == 0 {
		logging.Warn("no issue tracker configured, estimates are only stored locally")
		return opts, nil
	}
	return append(opts, session.WithEstimateWriter(chain)), nil
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides POKER_LISTEN)")
}
