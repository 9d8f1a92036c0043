// Package tui hosts the voting UI in a terminal. Host provides the dialog,
// notification and confirmation capabilities a poker.Client needs, delivering
// them to a bubbletea program as messages.
package tui

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danielolaszy/poker/internal/poker"
)

var errNoProgram = errors.New("no terminal program attached")

// notifyMsg carries a notification into the program.
type notifyMsg struct {
	note poker.Notification
}

// confirmMsg asks the user a question. The answer goes to reply.
type confirmMsg struct {
	prompt string
	reply  chan<- bool
}

// refreshMsg asks the program to redraw.
type refreshMsg struct{}

// dialogHiddenMsg reports that the open dialog was hidden.
type dialogHiddenMsg struct{}

// Host implements poker.ModalHost, poker.NotificationSink and
// poker.Confirmer on top of a bubbletea program. Call SetProgram once the
// program exists; messages sent before that are dropped.
type Host struct {
	program atomic.Pointer[tea.Program]

	mu     sync.Mutex
	dialog *Dialog
}

// NewHost creates a Host.
func NewHost() *Host {
	return &Host{}
}

// SetProgram sets the program that receives the host's messages.
func (h *Host) SetProgram(p *tea.Program) {
	h.program.Store(p)
}

func (h *Host) send(msg tea.Msg) {
	if p := h.program.Load(); p != nil {
		p.Send(msg)
	}
}

// Notify implements poker.NotificationSink.
func (h *Host) Notify(n poker.Notification) {
	h.send(notifyMsg{note: n})
}

// Confirm implements poker.Confirmer. It blocks until the user answers or
// ctx is done.
func (h *Host) Confirm(ctx context.Context, prompt string) (bool, error) {
	p := h.program.Load()
	if p == nil {
		return false, errNoProgram
	}
	reply := make(chan bool, 1)
	p.Send(confirmMsg{prompt: prompt, reply: reply})
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Open implements poker.ModalHost. A terminal shows one dialog at a time, so
// opening replaces the current one.
func (h *Host) Open(opts poker.DialogOptions) (poker.Modal, error) {
	d := &Dialog{host: h, opts: opts}
	h.mu.Lock()
	h.dialog = d
	h.mu.Unlock()
	return d, nil
}

// Dialog returns the most recently opened dialog, or nil.
func (h *Host) Dialog() *Dialog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dialog
}

type button struct {
	label   string
	onClick func()
}

// Dialog is a poker.Modal drawn by the program.
type Dialog struct {
	host *Host
	opts poker.DialogOptions

	mu         sync.Mutex
	header     string
	panelTitle string
	panel      *poker.Page
	buttons    []button
	visible    bool
}

// AddHeader sets the dialog title.
func (d *Dialog) AddHeader(title string) {
	d.mu.Lock()
	d.header = title
	d.mu.Unlock()
}

// AddPanel sets the page region drawn as the dialog body.
func (d *Dialog) AddPanel(title string, body *poker.Page) {
	d.mu.Lock()
	d.panelTitle = title
	d.panel = body
	d.mu.Unlock()
}

// AddButton adds a button that runs onClick when pressed.
func (d *Dialog) AddButton(label string, onClick func()) {
	d.mu.Lock()
	d.buttons = append(d.buttons, button{label: label, onClick: onClick})
	d.mu.Unlock()
}

// Show makes the dialog visible and redraws.
func (d *Dialog) Show() {
	d.mu.Lock()
	d.visible = true
	d.mu.Unlock()
	d.host.send(refreshMsg{})
}

// Hide hides the dialog, which ends the program.
func (d *Dialog) Hide() {
	d.mu.Lock()
	d.visible = false
	d.mu.Unlock()
	d.host.send(dialogHiddenMsg{})
}

// Refresh redraws after the panel page changed.
func (d *Dialog) Refresh() {
	d.host.send(refreshMsg{})
}

// Header returns the dialog title.
func (d *Dialog) Header() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header
}

// PanelTitle returns the title of the dialog's panel.
func (d *Dialog) PanelTitle() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.panelTitle
}

// Visible reports whether the dialog is shown.
func (d *Dialog) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// Press runs the handler of the button labelled label. It reports whether
// such a button exists.
func (d *Dialog) Press(label string) bool {
	d.mu.Lock()
	var fn func()
	for _, b := range d.buttons {
		if b.label == label {
			fn = b.onClick
		}
	}
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
