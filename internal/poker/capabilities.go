package poker

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielolaszy/poker/pkg/models"
)

// DialogOptions describes a modal to open.
type DialogOptions struct {
	ID                  string
	Width               int
	Height              int
	CloseOnOutsideClick bool
}

// ModalHost opens modals. Implementations own the rendering.
type ModalHost interface {
	Open(opts DialogOptions) (Modal, error)
}

// Modal is an open dialog. Panels render a live Page region; Refresh asks
// the host to redraw after the page changed.
type Modal interface {
	AddHeader(title string)
	AddPanel(title string, body *Page)
	AddButton(label string, onClick func())
	Show()
	Hide()
	Refresh()
}

// Kind is the severity of a notification.
type Kind int

const (
	KindSuccess Kind = iota
	KindError
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return "info"
	}
}

// Dismiss controls how a notification goes away.
type Dismiss int

const (
	// DismissAuto hides the notification after a short time.
	DismissAuto Dismiss = iota
	// DismissManual keeps it until the user closes it.
	DismissManual
	// DismissPersistent cannot be closed by the user.
	DismissPersistent
)

// Notification is a user-facing message.
type Notification struct {
	Kind    Kind
	Title   string
	Body    string
	Dismiss Dismiss
}

// NotificationSink shows notifications to the user.
type NotificationSink interface {
	Notify(n Notification)
}

// Confirmer asks the user a yes/no question. Returning false performs no action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Window is the document hosting the voting UI.
type Window interface {
	Reload(ctx context.Context) error
	// Parent returns the framing window, or nil for a top-level window.
	Parent() Window
}

// SessionWatcher receives live updates for a session.
type SessionWatcher interface {
	Watch(ctx context.Context, h models.SessionHandle)
	Stop(h models.SessionHandle)
}

// NopWatcher is a SessionWatcher that never delivers updates.
type NopWatcher struct{}

func (NopWatcher) Watch(context.Context, models.SessionHandle) {}
func (NopWatcher) Stop(models.SessionHandle)                   {}

// TokenSource yields the anti-forgery token for a mutating request.
// It is consulted on every request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed TokenSource.
type StaticToken string

// Token returns t.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// Action is a state-changing request on a session.
type Action string

const (
	ActionVote          Action = "vote"
	ActionEndSession    Action = "endSession"
	ActionApplyEstimate Action = "applyEstimate"
)

// FragmentKind selects which server-rendered fragment to fetch.
type FragmentKind int

const (
	// FragmentVoteForm is the vote form loaded into the dialog.
	FragmentVoteForm FragmentKind = iota
	// FragmentInstant is the instant widget, used after a session ends.
	FragmentInstant
)

// CreateSessionRequest creates or reuses the session of an issue.
type CreateSessionRequest struct {
	IssueKey string
}

// FragmentRequest fetches the rendered session state of an issue.
type FragmentRequest struct {
	IssueKey string
	Kind     FragmentKind
}

// ActionRequest mutates a session. Value and Comment apply to votes,
// FinalValue to estimates.
type ActionRequest struct {
	IssueKey   string
	Action     Action
	Value      string
	Comment    string
	FinalValue string
}

// HTTPClient is the server contract the voting UI depends on.
type HTTPClient interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) error
	FetchFragment(ctx context.Context, req FragmentRequest) (string, error)
	PostAction(ctx context.Context, req ActionRequest) error
}

// ServerError is a non-success response. Body is the raw response text.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, body)
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}
