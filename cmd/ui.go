package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danielolaszy/poker/internal/common"
	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/internal/poker"
	"github.com/danielolaszy/poker/internal/tui"
	"github.com/danielolaszy/poker/pkg/models"
	"github.com/spf13/cobra"
)

// redirectLogs sends logs to the daily log file while a full-screen UI runs.
// The returned function closes the file.
func redirectLogs() (func(), error) {
	f, err := common.OpenLogFile("poker", time.Now())
	if err != nil {
		return nil, err
	}
	logging.SetupLogger(f,
		logging.LogLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))),
		logging.Format(strings.ToLower(os.Getenv("LOG_FORMAT"))))
	return func() { f.Close() }, nil
}

// runProgram runs model full screen with host delivering client callbacks.
func runProgram(host *tui.Host, model tui.Model) error {
	program := tea.NewProgram(model, tea.WithAltScreen())
	host.SetProgram(program)
	_, err := program.Run()
	return err
}

var openCmd = &cobra.Command{
	Use:   "open KEY",
	Short: "Open the voting dialog of an issue in the terminal",
	Long: `Open the instant planning poker dialog of an issue in the terminal.

Opening the dialog starts a session for the issue if there is none. Use the
arrow keys to pick a card, enter to vote, c to add a comment, e to end the
session and x to close the dialog.

Example:
  poker open PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadClientConfig(cmd)
		if err != nil {
			return err
		}
		closeLogs, err := redirectLogs()
		if err != nil {
			return err
		}
		defer closeLogs()

		host := tui.NewHost()
		s, err := newClientSession(cfg, args[0], host, poker.WithConfirmer(host))
		if err != nil {
			return err
		}
		if err := s.window.Reload(ctx); err != nil {
			return fmt.Errorf("failed to load issue %s: %w", s.issueKey, err)
		}

		href := fmt.Sprintf("%s?key=%s", models.PathInstantPoker, s.issueKey)
		if hrefs := s.page.TriggerHrefs(); len(hrefs) > 0 {
			href = hrefs[0]
		}

		controller := poker.NewDialogController(s.client, host)
		model := tui.NewModel(ctx, tui.NewDialogSource(controller, host, href))
		return runProgram(host, model)
	},
}

var instantCmd = &cobra.Command{
	Use:   "instant KEY",
	Short: "Vote in the inline widget of an issue in the terminal",
	Long: `Show the inline planning poker widget of an issue in the terminal and vote
in it. The session must already exist; see 'poker start'.

Example:
  poker instant PROJ-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadClientConfig(cmd)
		if err != nil {
			return err
		}
		closeLogs, err := redirectLogs()
		if err != nil {
			return err
		}
		defer closeLogs()

		host := tui.NewHost()
		s, err := newClientSession(cfg, args[0], host, poker.WithConfirmer(host))
		if err != nil {
			return err
		}

		controller := poker.NewInlineController(s.client, s.page)
		model := tui.NewModel(ctx, tui.NewInlineSource(controller, s.window, s.issueKey))
		return runProgram(host, model)
	},
}
