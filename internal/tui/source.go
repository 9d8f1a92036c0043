package tui

import (
	"context"
	"strings"

	"github.com/danielolaszy/poker/internal/poker"
)

// Source is the voting UI instance a Model drives.
type Source interface {
	// Start loads the UI. It runs off the program's event loop.
	Start(ctx context.Context) error
	// Live returns the current binding, or nil.
	Live() *poker.Binding
	// Title is shown above the widget.
	Title() string
	// Message is shown when there is no binding.
	Message() string
	// Close tears the UI down. It runs off the program's event loop.
	Close(ctx context.Context) error
}

// DialogSource drives the voting dialog of one issue.
type DialogSource struct {
	controller *poker.DialogController
	host       *Host
	href       string
}

// NewDialogSource creates a source that opens the dialog the way clicking
// a trigger link with href would.
func NewDialogSource(controller *poker.DialogController, host *Host, href string) *DialogSource {
	return &DialogSource{controller: controller, host: host, href: href}
}

// Start opens the dialog through the trigger link.
func (s *DialogSource) Start(ctx context.Context) error {
	return s.controller.HandleTrigger(ctx, s.href)
}

// Live returns the binding of the open dialog.
func (s *DialogSource) Live() *poker.Binding {
	return s.controller.Live()
}

// Title returns the dialog header.
func (s *DialogSource) Title() string {
	if d := s.host.Dialog(); d != nil {
		return d.Header()
	}
	return "Instant Planning Poker"
}

// Message describes what the dialog is waiting for.
func (s *DialogSource) Message() string {
	if s.host.Dialog() == nil {
		return "Opening session..."
	}
	return "Loading..."
}

// Close presses the dialog's Close button.
func (s *DialogSource) Close(ctx context.Context) error {
	if d := s.host.Dialog(); d != nil && d.Press("Close") {
		return nil
	}
	return s.controller.Close(ctx)
}

// InlineSource drives the widget embedded in an issue page.
type InlineSource struct {
	controller *poker.InlineController
	window     *poker.PageWindow
	issueKey   string
}

// NewInlineSource creates a source over the issue page loaded into window.
// The controller re-initializes on every window load.
func NewInlineSource(controller *poker.InlineController, window *poker.PageWindow, issueKey string) *InlineSource {
	window.OnLoad(controller.InitInstantPoker)
	return &InlineSource{controller: controller, window: window, issueKey: issueKey}
}

// Start loads the issue page.
func (s *InlineSource) Start(ctx context.Context) error {
	return s.window.Reload(ctx)
}

// Live returns the binding of the embedded widget.
func (s *InlineSource) Live() *poker.Binding {
	return s.controller.Live()
}

// Title names the issue.
func (s *InlineSource) Title() string {
	return "Planning Poker - " + s.issueKey
}

// Message returns the page's notice, or a default when the page has no widget.
func (s *InlineSource) Message() string {
	if v := s.window.Page().View("body"); v != nil {
		if msg := strings.TrimSpace(v.Snapshot().Message); msg != "" {
			return msg
		}
	}
	return "No instant planning poker session on this page."
}

// Close does nothing; the page stays as it is.
func (s *InlineSource) Close(ctx context.Context) error {
	return nil
}
