package poker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/danielolaszy/poker/pkg/models"
)

var (
	// ErrBindingDisposed is returned when dispatching to a replaced binding.
	ErrBindingDisposed = errors.New("binding has been disposed")
	// ErrControlNotFound means the bound view has no such control.
	ErrControlNotFound = errors.New("control not present in the bound view")
	// ErrSlotClosed means the UI instance the binding belonged to was closed.
	ErrSlotClosed = errors.New("voting view has been closed")
)

// Binding attaches the action handlers to one installed view. It stays
// valid until disposed; after that every dispatch fails.
type Binding struct {
	client   *Client
	view     *View
	handle   models.SessionHandle
	slot     *LiveSlot
	disposed atomic.Bool
}

// Bind attaches the handlers of c to v.
func (c *Client) Bind(v *View, h models.SessionHandle) *Binding {
	c.log.Debug("binding view", "key", h.IssueKey, "mode", h.Mode)
	return &Binding{client: c, view: v, handle: h}
}

// Handle returns the session the binding was created for.
func (b *Binding) Handle() models.SessionHandle {
	return b.handle
}

// View returns the bound region.
func (b *Binding) View() *View {
	return b.view
}

// Dispose detaches the handlers. It is safe to call more than once.
func (b *Binding) Dispose() {
	b.disposed.Store(true)
}

// Disposed reports whether Dispose was called.
func (b *Binding) Disposed() bool {
	return b.disposed.Load()
}

func (b *Binding) check() error {
	if b.Disposed() {
		return ErrBindingDisposed
	}
	return nil
}

// ClickCard casts a vote for the card with value, using the comment box text.
func (b *Binding) ClickCard(ctx context.Context, value string) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.client.CastVote(ctx, b, value, b.view.Comment())
}

// SetComment types text into the comment box.
func (b *Binding) SetComment(text string) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.view.SetComment(text) {
		return ErrControlNotFound
	}
	return nil
}

// ClickEndSession ends the session after confirmation. In instant mode the
// control must be visible.
func (b *Binding) ClickEndSession(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	present, visible := b.view.EndSessionControl()
	if !present || (b.handle.Instant() && !visible) {
		return ErrControlNotFound
	}
	return b.client.EndSession(ctx, b)
}

// ClickApplyEstimate applies one of the offered estimate values.
func (b *Binding) ClickApplyEstimate(ctx context.Context, value string) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.client.ApplyEstimate(ctx, b, value)
}

// LiveSlot holds the one installed binding of a voting UI instance.
type LiveSlot struct {
	mu      sync.Mutex
	current *Binding
	modal   Modal
	closed  bool
	reinit  func(ctx context.Context)
}

// NewLiveSlot creates a slot. reinit runs after every reconciliation to bind
// the freshly installed markup.
func NewLiveSlot(reinit func(ctx context.Context)) *LiveSlot {
	return &LiveSlot{reinit: reinit}
}

// Install makes b the live binding, disposing the previous one first. A
// closed slot disposes b instead and reports false.
func (s *LiveSlot) Install(b *Binding) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		b.Dispose()
		return false
	}
	if s.current != nil && s.current != b {
		s.current.Dispose()
	}
	b.slot = s
	s.current = b
	return true
}

// Current returns the live binding, or nil.
func (s *LiveSlot) Current() *Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear disposes the live binding and empties the slot.
func (s *LiveSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Dispose()
		s.current = nil
	}
}

// Close clears the slot for good. Later installs and reconciliations are refused.
func (s *LiveSlot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.current != nil {
		s.current.Dispose()
		s.current = nil
	}
}

// Closed reports whether Close was called.
func (s *LiveSlot) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LiveSlot) setModal(m Modal) {
	s.mu.Lock()
	s.modal = m
	s.mu.Unlock()
}

// Modal returns the dialog the slot renders into, or nil for inline widgets.
func (s *LiveSlot) Modal() Modal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modal
}

// Reconcile swaps the wrapper of b's view for the one in fragment and
// re-initializes. If the fragment has no wrapper nothing is touched and
// ErrWrapperNotFound is returned. A closed slot is left alone and
// ErrSlotClosed is returned.
func (s *LiveSlot) Reconcile(ctx context.Context, b *Binding, fragment string) error {
	if s.Closed() {
		return ErrSlotClosed
	}
	n, err := extractWrapper(fragment)
	if err != nil {
		return err
	}
	if err := b.view.replaceWrapper(n); err != nil {
		return err
	}

	s.Clear()
	if s.reinit != nil {
		s.reinit(ctx)
	}
	return nil
}
