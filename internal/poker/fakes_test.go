package poker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielolaszy/poker/pkg/models"
	"github.com/stretchr/testify/require"
)

type fakeHTTP struct {
	mu        sync.Mutex
	calls     []string
	actions   []ActionRequest
	createErr error
	actionErr map[Action]error
	fetchErr  error
	fragments map[FragmentKind]string
	release   chan struct{}
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		actionErr: make(map[Action]error),
		fragments: map[FragmentKind]string{
			FragmentVoteForm: openFragment("PROJ-123", true),
			FragmentInstant:  resultsFragment("PROJ-123"),
		},
	}
}

func (f *fakeHTTP) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeHTTP) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeHTTP) Actions() []ActionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ActionRequest(nil), f.actions...)
}

func (f *fakeHTTP) CreateSession(ctx context.Context, req CreateSessionRequest) error {
	f.record("create:" + req.IssueKey)
	return f.createErr
}

func (f *fakeHTTP) FetchFragment(ctx context.Context, req FragmentRequest) (string, error) {
	kind := "form"
	if req.Kind == FragmentInstant {
		kind = "instant"
	}
	f.record("fetch:" + kind + ":" + req.IssueKey)
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.fragments[req.Kind], nil
}

func (f *fakeHTTP) PostAction(ctx context.Context, req ActionRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("post:%s:%s", req.Action, req.IssueKey))
	f.actions = append(f.actions, req)
	release := f.release
	err := f.actionErr[req.Action]
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

type recordingSink struct {
	mu    sync.Mutex
	notes []Notification
}

func (s *recordingSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *recordingSink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notes...)
}

func (s *recordingSink) Last(t *testing.T) Notification {
	t.Helper()
	all := s.All()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type fakeWindow struct {
	mu      sync.Mutex
	reloads int
	parent  Window
}

func (w *fakeWindow) Reload(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reloads++
	return nil
}

func (w *fakeWindow) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *fakeWindow) Parent() Window {
	return w.parent
}

type fakeModal struct {
	mu      sync.Mutex
	header  string
	panel   *Page
	buttons map[string]func()
	shown   bool
	hidden  bool
	redraws int
}

func (m *fakeModal) AddHeader(title string)           { m.header = title }
func (m *fakeModal) AddPanel(title string, body *Page) { m.panel = body }

func (m *fakeModal) AddButton(label string, onClick func()) {
	if m.buttons == nil {
		m.buttons = make(map[string]func())
	}
	m.buttons[label] = onClick
}

func (m *fakeModal) Show() {
	m.mu.Lock()
	m.shown = true
	m.mu.Unlock()
}

func (m *fakeModal) Hide() {
	m.mu.Lock()
	m.hidden = true
	m.mu.Unlock()
}

func (m *fakeModal) Refresh() {
	m.mu.Lock()
	m.redraws++
	m.mu.Unlock()
}

func (m *fakeModal) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

type fakeModalHost struct {
	opened []DialogOptions
	modals []*fakeModal
}

func (h *fakeModalHost) Open(opts DialogOptions) (Modal, error) {
	h.opened = append(h.opened, opts)
	m := &fakeModal{}
	h.modals = append(h.modals, m)
	return m, nil
}

type scriptedConfirmer struct {
	answer  bool
	prompts []string
}

func (c *scriptedConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	return c.answer, nil
}

type countingWatcher struct {
	mu      sync.Mutex
	watches int
	stops   int
}

func (w *countingWatcher) Watch(context.Context, models.SessionHandle) {
	w.mu.Lock()
	w.watches++
	w.mu.Unlock()
}

func (w *countingWatcher) Stop(models.SessionHandle) {
	w.mu.Lock()
	w.stops++
	w.mu.Unlock()
}

// deferredTimer captures scheduled functions instead of running them.
type deferredTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (d *deferredTimer) AfterFunc(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, delay)
	d.fns = append(d.fns, fn)
}

func (d *deferredTimer) RunAll() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func openFragment(key string, creator bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="instant-vote-wrapper" data-is-instant="true" data-is-creator="%t" data-issue-key="%s" data-state="open">`, creator, key)
	b.WriteString(`<div class="cards">`)
	for _, v := range []string{"1", "2", "3", "5", "8", "13", "?"} {
		fmt.Fprintf(&b, `<a href="#" class="card" data-value="%s">%s</a>`, v, v)
	}
	b.WriteString(`</div>`)
	b.WriteString(`<textarea id="voteComment" name="voteComment"></textarea>`)
	b.WriteString(`<ul class="voters"><li>bob</li></ul>`)
	b.WriteString(`<div id="end-session-container" style="display:none"><button id="end-session-btn">End Session</button></div>`)
	b.WriteString(`</div>`)
	return b.String()
}

func resultsFragment(key string) string {
	return fmt.Sprintf(`<section class="poker-results"><div id="instant-vote-wrapper" data-is-instant="true" data-is-creator="true" data-issue-key="%s" data-state="ended">
<table class="results">
<tr class="vote"><td class="voter">alice</td><td class="vote-value">5</td><td class="vote-comment">gut feeling</td></tr>
<tr class="vote"><td class="voter">bob</td><td class="vote-value">8</td><td class="vote-comment"></td></tr>
</table>
<dl class="stats" data-min="5" data-max="8" data-average="6.5" data-count="2"></dl>
<button class="apply-estimate" data-value="5">Apply 5</button>
<button class="apply-estimate" data-value="8">Apply 8</button>
</div></section>`, key)
}

func hostPage(widget string) string {
	return `<html><head><meta name="atlassian-token" content="tok-1"></head><body>` +
		`<h1>PROJ-123</h1><a class="instant-poker-trigger" href="/secure/InstantPoker!default.jspa?key=PROJ-123">Poker</a>` +
		widget + `</body></html>`
}

// harness wires an inline controller over a host page with fakes.
type harness struct {
	http    *fakeHTTP
	sink    *recordingSink
	window  *fakeWindow
	confirm *scriptedConfirmer
	timer   *deferredTimer
	watcher *countingWatcher
	page    *Page
	client  *Client
	inline  *InlineController
}

func newHarness(t *testing.T, widget string) *harness {
	t.Helper()
	page, err := NewPage(hostPage(widget))
	require.NoError(t, err)

	h := &harness{
		http:    newFakeHTTP(),
		sink:    &recordingSink{},
		window:  &fakeWindow{},
		confirm: &scriptedConfirmer{answer: true},
		timer:   &deferredTimer{},
		watcher: &countingWatcher{},
		page:    page,
	}
	h.client = NewClient(h.http, h.sink, h.window,
		WithConfirmer(h.confirm),
		WithWatcher(h.watcher),
		WithReloadDelay(1500*time.Millisecond),
		WithAfterFunc(h.timer.AfterFunc),
	)
	h.inline = NewInlineController(h.client, page)
	h.inline.InitInstantPoker(context.Background())
	return h
}

func (h *harness) live(t *testing.T) *Binding {
	t.Helper()
	b := h.inline.Live()
	require.NotNil(t, b)
	return b
}
