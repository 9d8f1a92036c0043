// Package poker keeps a rendered planning poker view consistent with the
// server-side session across vote casts, session termination and estimate
// application.
//
// The package talks to its environment only through capabilities: an
// HTTPClient for the server, a ModalHost for dialogs, a NotificationSink for
// messages, a Window to reload and a Confirmer for yes/no prompts.
package poker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danielolaszy/poker/internal/logging"
)

// DefaultReloadDelay is how long the success message of an applied estimate
// stays up before the window reloads.
const DefaultReloadDelay = 1500 * time.Millisecond

// ConfirmEndPrompt is asked before a session is ended.
const ConfirmEndPrompt = "End this session and show results?"

const refreshFailedText = "Failed to refresh dialog content. Please close and reopen the dialog."

var (
	// ErrInFlight is returned when the same action on the same issue is still pending.
	ErrInFlight = errors.New("an identical request is already in flight")
	// ErrNoIssueKey means neither the view nor the handle names an issue.
	ErrNoIssueKey = errors.New("issue key not found")
	// ErrNotInstalled means a binding was used for reconciliation without a slot.
	ErrNotInstalled = errors.New("binding is not installed in a live slot")
)

// Phase is the step of an action's request lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseCommitted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// CardPatch is a change of the active card. An empty value means no card.
type CardPatch struct {
	From string
	To   string
}

// Inverse returns the patch undoing p.
func (p CardPatch) Inverse() CardPatch {
	return CardPatch{From: p.To, To: p.From}
}

// ActionState is the last known state of one action. Patch is the optimistic
// change while Pending and the applied revert once Failed.
type ActionState struct {
	Phase Phase
	Patch CardPatch
	Err   error
}

type actionKey struct {
	issueKey string
	action   Action
}

// Client issues the state-changing actions and reconciles the view afterwards.
type Client struct {
	http        HTTPClient
	notes       NotificationSink
	window      Window
	confirm     Confirmer
	watcher     SessionWatcher
	reloadDelay time.Duration
	afterFunc   func(d time.Duration, f func())
	log         *slog.Logger

	mu       sync.Mutex
	inFlight map[actionKey]bool
	states   map[actionKey]ActionState
}

// Option configures a Client.
type Option func(*Client)

// WithConfirmer sets how the user confirms ending a session.
func WithConfirmer(c Confirmer) Option {
	return func(cl *Client) { cl.confirm = c }
}

// WithWatcher sets the live-update strategy.
func WithWatcher(w SessionWatcher) Option {
	return func(cl *Client) { cl.watcher = w }
}

// WithReloadDelay sets the pause between an applied estimate and the reload.
func WithReloadDelay(d time.Duration) Option {
	return func(cl *Client) { cl.reloadDelay = d }
}

// WithAfterFunc replaces the timer used to schedule the reload.
func WithAfterFunc(f func(d time.Duration, fn func())) Option {
	return func(cl *Client) { cl.afterFunc = f }
}

// NewClient creates a Client.
func NewClient(http HTTPClient, notes NotificationSink, window Window, opts ...Option) *Client {
	c := &Client{
		http:        http,
		notes:       notes,
		window:      window,
		watcher:     NopWatcher{},
		reloadDelay: DefaultReloadDelay,
		afterFunc:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		log:         logging.With("poker"),
		inFlight:    make(map[actionKey]bool),
		states:      make(map[actionKey]ActionState),
	}
	c.confirm = ConfirmFunc(func(context.Context, string) (bool, error) {
		c.log.Warn("no confirmer configured, declining")
		return false, nil
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the last known state of action on issueKey.
func (c *Client) State(issueKey string, action Action) ActionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[actionKey{issueKey, action}]
}

func (c *Client) begin(k actionKey, patch CardPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[k] {
		return ErrInFlight
	}
	c.inFlight[k] = true
	c.states[k] = ActionState{Phase: PhasePending, Patch: patch}
	return nil
}

func (c *Client) finish(k actionKey, state ActionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, k)
	c.states[k] = state
}

// issueKey reads the key from the live wrapper, falling back to the handle.
func (c *Client) issueKey(b *Binding) (string, error) {
	if key := b.view.IssueKey(); key != "" {
		return key, nil
	}
	if b.handle.IssueKey != "" {
		return b.handle.IssueKey, nil
	}
	c.log.Error("issue key not found", "mode", b.handle.Mode)
	return "", ErrNoIssueKey
}

func (c *Client) fail(body string, dismiss Dismiss) {
	c.notes.Notify(Notification{Kind: KindError, Title: "Error", Body: body, Dismiss: dismiss})
}

// errorText prefers the server's response text.
func errorText(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		if body := strings.TrimSpace(se.Body); body != "" {
			return body
		}
		return "Unknown error"
	}
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}

// CastVote marks the card active at once and submits the vote. A rejected
// vote restores the previously active card.
func (c *Client) CastVote(ctx context.Context, b *Binding, value, comment string) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.view.HasCard(value) {
		return ErrControlNotFound
	}
	key, err := c.issueKey(b)
	if err != nil {
		return err
	}
	k := actionKey{key, ActionVote}
	if err := c.begin(k, CardPatch{}); err != nil {
		c.log.Warn("vote already in flight", "key", key)
		return err
	}

	patch := CardPatch{From: b.view.SelectCard(value), To: value}
	c.mu.Lock()
	c.states[k] = ActionState{Phase: PhasePending, Patch: patch}
	c.mu.Unlock()

	c.log.Info("submitting vote", "key", key, "value", value)
	err = c.http.PostAction(ctx, ActionRequest{
		IssueKey: key,
		Action:   ActionVote,
		Value:    value,
		Comment:  comment,
	})
	if err != nil {
		revert := patch.Inverse()
		b.view.SelectCard(revert.To)
		c.finish(k, ActionState{Phase: PhaseFailed, Patch: revert, Err: err})
		c.log.Error("vote failed", "key", key, "error", err)
		c.fail("Failed to submit vote: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to submit vote: %w", err)
	}

	c.finish(k, ActionState{Phase: PhaseCommitted, Patch: patch})
	c.notes.Notify(Notification{
		Kind:    KindSuccess,
		Title:   "Vote Submitted",
		Body:    "Your vote has been recorded!",
		Dismiss: DismissAuto,
	})
	if b.handle.Instant() && b.view.Creator() {
		b.view.RevealEndSession()
	}
	return nil
}

// EndSession asks for confirmation, ends the session and swaps in the
// results view. Declining sends nothing.
func (c *Client) EndSession(ctx context.Context, b *Binding) error {
	if err := b.check(); err != nil {
		return err
	}
	key, err := c.issueKey(b)
	if err != nil {
		return err
	}

	ok, err := c.confirm.Confirm(ctx, ConfirmEndPrompt)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		c.log.Info("end session declined", "key", key)
		return nil
	}

	k := actionKey{key, ActionEndSession}
	if err := c.begin(k, CardPatch{}); err != nil {
		c.log.Warn("end session already in flight", "key", key)
		return err
	}

	c.log.Info("ending session", "key", key)
	if err := c.http.PostAction(ctx, ActionRequest{IssueKey: key, Action: ActionEndSession}); err != nil {
		c.finish(k, ActionState{Phase: PhaseFailed, Err: err})
		c.log.Error("end session failed", "key", key, "error", err)
		c.fail("Failed to end session: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to end session: %w", err)
	}
	c.finish(k, ActionState{Phase: PhaseCommitted})
	c.watcher.Stop(b.handle)

	fragment, err := c.http.FetchFragment(ctx, FragmentRequest{IssueKey: key, Kind: FragmentInstant})
	if err != nil {
		c.log.Error("failed to fetch fresh content", "key", key, "error", err)
		c.fail("Failed to fetch session results: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to fetch session results: %w", err)
	}
	c.log.Debug("fetched fresh content", "key", key, "bytes", len(fragment))

	if b.slot == nil {
		c.log.Error("ended session has no view to refresh", "key", key)
		c.fail(refreshFailedText, DismissManual)
		return ErrNotInstalled
	}
	err = b.slot.Reconcile(ctx, b, fragment)
	if errors.Is(err, ErrSlotClosed) {
		c.log.Info("session ended after its view was closed", "key", key)
		return nil
	}
	if err != nil {
		c.log.Warn("could not replace voting view", "key", key, "error", err)
		c.fail(refreshFailedText, DismissManual)
		return fmt.Errorf("failed to refresh session view: %w", err)
	}
	c.log.Info("session results shown", "key", key)
	return nil
}

// ApplyEstimate writes value as the final estimate. On success the open
// modal closes and the window reloads after the reload delay.
func (c *Client) ApplyEstimate(ctx context.Context, b *Binding, value string) error {
	if err := b.check(); err != nil {
		return err
	}
	if !slices.Contains(b.view.EstimateValues(), value) {
		return ErrControlNotFound
	}
	key, err := c.issueKey(b)
	if err != nil {
		return err
	}
	k := actionKey{key, ActionApplyEstimate}
	if err := c.begin(k, CardPatch{}); err != nil {
		c.log.Warn("apply estimate already in flight", "key", key)
		return err
	}

	c.log.Info("applying estimate", "key", key, "value", value)
	err = c.http.PostAction(ctx, ActionRequest{
		IssueKey:   key,
		Action:     ActionApplyEstimate,
		FinalValue: value,
	})
	if err != nil {
		c.finish(k, ActionState{Phase: PhaseFailed, Err: err})
		c.log.Error("apply estimate failed", "key", key, "error", err)
		c.fail("Failed to apply estimate: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to apply estimate: %w", err)
	}
	c.finish(k, ActionState{Phase: PhaseCommitted})

	c.notes.Notify(Notification{
		Kind:    KindSuccess,
		Title:   "Success",
		Body:    fmt.Sprintf("Estimate %s applied to issue!", value),
		Dismiss: DismissAuto,
	})

	var modal Modal
	if b.slot != nil {
		modal = b.slot.Modal()
	}
	reloadCtx := context.WithoutCancel(ctx)
	c.afterFunc(c.reloadDelay, func() {
		if modal != nil {
			modal.Hide()
		}
		c.reload(reloadCtx)
	})
	return nil
}

// reload reloads the framing window if there is one, else the current window.
func (c *Client) reload(ctx context.Context) {
	if c.window == nil {
		c.log.Warn("no window to reload")
		return
	}
	w := c.window
	if parent := w.Parent(); parent != nil {
		w = parent
	}
	if err := w.Reload(ctx); err != nil {
		c.log.Error("failed to reload window", "error", err)
	}
}
