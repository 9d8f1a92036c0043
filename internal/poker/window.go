package poker

import (
	"context"
	"sync"
)

// PageWindow is a Window whose document is a Page fetched from the server.
// Reload fetches the document again and runs the load hooks, the way a
// browser fires document ready.
type PageWindow struct {
	page   *Page
	fetch  func(ctx context.Context) (string, error)
	parent Window

	mu     sync.Mutex
	onLoad []func(ctx context.Context)
}

// NewPageWindow creates a window over page. fetch returns the document source.
func NewPageWindow(page *Page, fetch func(ctx context.Context) (string, error)) *PageWindow {
	return &PageWindow{page: page, fetch: fetch}
}

// Page returns the window's document.
func (w *PageWindow) Page() *Page {
	return w.page
}

// SetParent frames w inside parent.
func (w *PageWindow) SetParent(parent Window) {
	w.parent = parent
}

// OnLoad registers fn to run after every load.
func (w *PageWindow) OnLoad(fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad = append(w.onLoad, fn)
}

// Reload fetches and replaces the document.
func (w *PageWindow) Reload(ctx context.Context) error {
	src, err := w.fetch(ctx)
	if err != nil {
		return err
	}
	if err := w.page.Load(src); err != nil {
		return err
	}

	w.mu.Lock()
	hooks := append([]func(context.Context){}, w.onLoad...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
	return nil
}

// Parent returns the framing window, or nil.
func (w *PageWindow) Parent() Window {
	return w.parent
}
