package poker

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/danielolaszy/poker/pkg/models"
)

// Dialog geometry.
const (
	DialogID     = "instant-poker-dialog"
	DialogWidth  = 800
	DialogHeight = 600
)

// DialogController renders the voting UI inside a modal.
type DialogController struct {
	client *Client
	host   ModalHost

	mu    sync.Mutex
	slot  *LiveSlot
	modal Modal
}

// NewDialogController creates a controller opening modals on host.
func NewDialogController(c *Client, host ModalHost) *DialogController {
	return &DialogController{client: c, host: host}
}

// HandleTrigger opens the dialog for the issue named by a trigger link's href.
func (d *DialogController) HandleTrigger(ctx context.Context, href string) error {
	u, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("invalid trigger link %q: %w", href, err)
	}
	key := u.Query().Get("key")
	if key == "" {
		d.client.log.Warn("trigger link without issue key", "href", href)
		return nil
	}
	return d.OpenDialog(ctx, key)
}

// OpenDialog creates or reuses the session of issueKey and shows the vote
// form in a modal. No modal is opened if the session cannot be created.
func (d *DialogController) OpenDialog(ctx context.Context, issueKey string) error {
	d.client.log.Info("creating session", "key", issueKey)
	if err := d.client.http.CreateSession(ctx, CreateSessionRequest{IssueKey: issueKey}); err != nil {
		d.client.log.Error("session create failed", "key", issueKey, "error", err)
		d.client.fail("Failed to create session: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return d.showVotingDialog(ctx, issueKey)
}

func (d *DialogController) showVotingDialog(ctx context.Context, issueKey string) error {
	modal, err := d.host.Open(DialogOptions{
		ID:     DialogID,
		Width:  DialogWidth,
		Height: DialogHeight,
	})
	if err != nil {
		return fmt.Errorf("failed to open dialog: %w", err)
	}

	page, err := NewPage(fmt.Sprintf(`<div id="%s">Loading...</div>`, DialogContentID))
	if err != nil {
		return err
	}
	h := models.SessionHandle{IssueKey: issueKey, Mode: models.ModeModal}
	slot := NewLiveSlot(nil)
	slot.reinit = func(ctx context.Context) { d.bind(ctx, page, slot, h) }
	slot.setModal(modal)

	modal.AddHeader("Instant Planning Poker - " + issueKey)
	modal.AddPanel("Vote Panel", page)
	modal.AddButton("Close", func() {
		if err := d.Close(context.Background()); err != nil {
			d.client.log.Error("failed to reload after closing dialog", "error", err)
		}
	})

	d.mu.Lock()
	previous := d.slot
	d.slot, d.modal = slot, modal
	d.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	modal.Show()

	src, err := d.client.http.FetchFragment(ctx, FragmentRequest{IssueKey: issueKey, Kind: FragmentVoteForm})
	if err != nil {
		d.client.log.Error("failed to load vote form", "key", issueKey, "error", err)
		d.client.fail("Failed to load vote form: "+errorText(err), DismissManual)
		return fmt.Errorf("failed to load vote form: %w", err)
	}
	if err := page.SetContent("#"+DialogContentID, src); err != nil {
		return err
	}
	d.bind(ctx, page, slot, h)
	return nil
}

// bind installs a fresh binding over the dialog content.
func (d *DialogController) bind(ctx context.Context, page *Page, slot *LiveSlot, h models.SessionHandle) {
	v := page.View("#" + DialogContentID)
	if v == nil {
		return
	}
	if !slot.Install(d.client.Bind(v, h)) {
		return
	}
	d.client.watcher.Watch(ctx, h)
	if m := slot.Modal(); m != nil {
		m.Refresh()
	}
}

// Live returns the binding of the open dialog, or nil.
func (d *DialogController) Live() *Binding {
	d.mu.Lock()
	slot := d.slot
	d.mu.Unlock()
	if slot == nil {
		return nil
	}
	return slot.Current()
}

// Close hides the dialog and reloads the window, since data shown outside
// the dialog may be stale.
func (d *DialogController) Close(ctx context.Context) error {
	d.mu.Lock()
	slot, modal := d.slot, d.modal
	d.slot, d.modal = nil, nil
	d.mu.Unlock()

	if slot != nil {
		if b := slot.Current(); b != nil {
			d.client.watcher.Stop(b.Handle())
		}
		slot.Close()
	}
	if modal != nil {
		modal.Hide()
	}
	if d.client.window == nil {
		return nil
	}
	return d.client.window.Reload(ctx)
}
