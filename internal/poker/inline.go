package poker

import (
	"context"
	"sync"

	"github.com/danielolaszy/poker/pkg/models"
)

// InlineController binds the voting widget embedded in a host page.
type InlineController struct {
	client *Client
	page   *Page
	slot   *LiveSlot
	mu     sync.Mutex
}

// NewInlineController creates a controller for the widget on page.
func NewInlineController(c *Client, page *Page) *InlineController {
	ic := &InlineController{client: c, page: page}
	ic.slot = NewLiveSlot(ic.InitInstantPoker)
	return ic
}

// InitInstantPoker binds the widget on the page. It is idempotent: a wrapper
// that is already bound is left alone, and a widget outside instant mode
// gets no binding.
func (ic *InlineController) InitInstantPoker(ctx context.Context) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	v := ic.page.View(WrapperSelector)
	if v == nil {
		ic.slot.Clear()
		return
	}

	instant, creator, key := v.Instant(), v.Creator(), v.IssueKey()
	ic.client.log.Debug("instant poker init", "instant", instant, "creator", creator, "key", key)
	if !instant {
		ic.slot.Clear()
		return
	}
	if cur := ic.slot.Current(); cur != nil && cur.view.root == v.root {
		return
	}

	h := models.SessionHandle{IssueKey: key, Mode: models.ModeInstant}
	ic.slot.Install(ic.client.Bind(v, h))
	ic.client.watcher.Watch(ctx, h)
}

// ContentAdded re-initializes after the host inserted new content.
func (ic *InlineController) ContentAdded(ctx context.Context) {
	ic.InitInstantPoker(ctx)
}

// Live returns the installed binding, or nil.
func (ic *InlineController) Live() *Binding {
	return ic.slot.Current()
}
