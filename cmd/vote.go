package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/internal/poker"
	"github.com/spf13/cobra"
)

// clientSession is one voter's view of an issue page and its voting widget.
type clientSession struct {
	issueKey  string
	transport *poker.Transport
	page      *poker.Page
	window    *poker.PageWindow
	client    *poker.Client
}

// newClientSession prepares a client for the issue page of issueKey. The page
// is not fetched yet; anti-forgery tokens are read from it once it is.
func newClientSession(cfg *config.Config, issueKey string, notes poker.NotificationSink, opts ...poker.Option) (*clientSession, error) {
	page, err := poker.NewPage(`<html><body></body></html>`)
	if err != nil {
		return nil, err
	}

	transport, err := poker.NewTransport(cfg.Poker.URL, cfg.Poker.Username, cfg.Poker.Token, poker.WithTokenSource(page))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize poker client: %w", err)
	}

	window := poker.NewPageWindow(page, func(ctx context.Context) (string, error) {
		return transport.FetchPage(ctx, issueKey)
	})

	opts = append([]poker.Option{poker.WithReloadDelay(cfg.Poker.ReloadDelay)}, opts...)
	client := poker.NewClient(transport, notes, window, opts...)

	logging.Debug("poker client configured",
		"url", cfg.Poker.URL,
		"username", cfg.Poker.Username,
		"token", logging.MaskSensitive(cfg.Poker.Token),
		"key", issueKey)

	return &clientSession{
		issueKey:  issueKey,
		transport: transport,
		page:      page,
		window:    window,
		client:    client,
	}, nil
}

// inline loads the issue page and returns the binding of its widget.
func (s *clientSession) inline(ctx context.Context) (*poker.InlineController, *poker.Binding, error) {
	ic := poker.NewInlineController(s.client, s.page)
	s.window.OnLoad(ic.InitInstantPoker)
	if err := s.window.Reload(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load issue %s: %w", s.issueKey, err)
	}
	b := ic.Live()
	if b == nil {
		return nil, nil, fmt.Errorf("no planning poker session for %s, run 'poker start %s' first", s.issueKey, s.issueKey)
	}
	return ic, b, nil
}

// runNow runs scheduled reloads immediately so a command sees them
// before it exits.
func runNow(_ time.Duration, fn func()) {
	fn()
}

// setupSession loads config and builds a print-backed client session.
func setupSession(cmd *cobra.Command, issueKey string, opts ...poker.Option) (*clientSession, error) {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return nil, err
	}
	sink := printSink{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	opts = append(opts, poker.WithAfterFunc(runNow))
	return newClientSession(cfg, issueKey, sink, opts...)
}

var startCmd = &cobra.Command{
	Use:   "start KEY",
	Short: "Start a planning poker session for an issue",
	Long: `Start a planning poker session for an issue, or reuse the one that exists.

An ended session without a final estimate is restarted.

Example:
  poker start PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		if err := s.window.Reload(ctx); err != nil {
			return fmt.Errorf("failed to load issue %s: %w", s.issueKey, err)
		}
		if err := s.transport.CreateSession(ctx, poker.CreateSessionRequest{IssueKey: s.issueKey}); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session for %s is open\n", s.issueKey)
		return nil
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote KEY VALUE",
	Short: "Vote in the planning poker session of an issue",
	Long: `Vote in the planning poker session of an issue. Voting again replaces
your previous vote.

Example:
  poker vote PROJ-123 5 --comment "similar to PROJ-99"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		comment, err := cmd.Flags().GetString("comment")
		if err != nil {
			return err
		}

		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		_, b, err := s.inline(ctx)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("comment") {
			if err := b.SetComment(comment); err != nil {
				return err
			}
		}
		if err := b.ClickCard(ctx, args[1]); err != nil {
			if errors.Is(err, poker.ErrControlNotFound) {
				return fmt.Errorf("%q is not one of the cards of %s", args[1], s.issueKey)
			}
			return err
		}
		return nil
	},
}

var endCmd = &cobra.Command{
	Use:   "end KEY",
	Short: "End the planning poker session of an issue",
	Long: `End the planning poker session of an issue and show the results.
Only the creator of the session can end it.

Example:
  poker end PROJ-123 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yes, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return err
		}

		var confirmer poker.Confirmer = newPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
		if yes {
			confirmer = poker.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
		}

		s, err := setupSession(cmd, args[0], poker.WithConfirmer(confirmer))
		if err != nil {
			return err
		}
		ic, b, err := s.inline(ctx)
		if err != nil {
			return err
		}
		if err := b.ClickEndSession(ctx); err != nil {
			if errors.Is(err, poker.ErrControlNotFound) {
				return fmt.Errorf("the session of %s can only be ended by its creator after voting", s.issueKey)
			}
			return err
		}
		if !b.Disposed() {
			return nil
		}
		if results := ic.Live(); results != nil {
			printSnapshot(cmd.OutOrStdout(), results.View().Snapshot())
		}
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply KEY VALUE",
	Short: "Apply the final estimate of an ended session",
	Long: `Apply one of the values voted in an ended session as the final estimate.
The estimate is written back to the issue tracker.

Example:
  poker apply PROJ-123 5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		_, b, err := s.inline(ctx)
		if err != nil {
			return err
		}
		if err := b.ClickApplyEstimate(ctx, args[1]); err != nil {
			if errors.Is(err, poker.ErrControlNotFound) {
				return fmt.Errorf("%q is not an estimate that can be applied to %s", args[1], s.issueKey)
			}
			return err
		}
		return nil
	},
}

var votesCmd = &cobra.Command{
	Use:   "votes KEY",
	Short: "Show the state of the planning poker session of an issue",
	Long: `Show the state of the planning poker session of an issue: who voted while
it is open, the votes and statistics once it ended.

Example:
  poker votes PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setupSession(cmd, args[0])
		if err != nil {
			return err
		}
		_, b, err := s.inline(cmd.Context())
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), b.View().Snapshot())
		return nil
	},
}

func init() {
	voteCmd.Flags().StringP("comment", "c", "", "Comment to attach to the vote")
	endCmd.Flags().BoolP("yes", "y", false, "End without asking for confirmation")
}
