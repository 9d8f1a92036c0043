package poker

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/danielolaszy/poker/pkg/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Selectors of the voting markup.
const (
	WrapperSelector      = "#instant-vote-wrapper"
	DialogContentID      = "instant-vote-content"
	TriggerSelector      = ".instant-poker-trigger"
	cardSelector         = ".card"
	commentSelector      = "#voteComment"
	endContainerSelector = "#end-session-container"
	endButtonSelector    = "#end-session-btn"
	estimateSelector     = ".apply-estimate"
)

var (
	// ErrWrapperNotFound means a fragment carried no voting wrapper.
	ErrWrapperNotFound = errors.New("voting wrapper not found in fragment")
	// ErrNoToken means the page carries no anti-forgery token.
	ErrNoToken = errors.New("anti-forgery token not found on page")
)

// Page is a live HTML document. All access goes through its lock, so Views
// from several goroutines never observe a partial mutation.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// NewPage parses src into a Page.
func NewPage(src string) (*Page, error) {
	p := &Page{}
	if err := p.Load(src); err != nil {
		return nil, err
	}
	return p, nil
}

// Load replaces the whole document. Views of the old document become detached.
func (p *Page) Load(src string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// HTML renders the current document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

// Token reads the anti-forgery token from the page meta element.
func (p *Page) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sel := range []string{`meta[name="atlassian-token"]`, "#atlassian-token"} {
		if token, ok := p.doc.Find(sel).First().Attr("content"); ok && token != "" {
			return token, nil
		}
	}
	return "", ErrNoToken
}

// SetContent replaces the children of the first element matching selector.
func (p *Page) SetContent(selector, src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.doc.Find(selector).First()
	if target.Length() == 0 {
		return errors.New("no element matches " + selector)
	}
	target.SetHtml(src)
	return nil
}

// TriggerHrefs returns the href of every dialog trigger link on the page.
func (p *Page) TriggerHrefs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(TriggerSelector).Map(func(_ int, s *goquery.Selection) string {
		return s.AttrOr("href", "")
	})
}

// View returns the region rooted at the first element matching selector,
// or nil if there is none.
func (p *Page) View(selector string) *View {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil
	}
	return &View{page: p, root: s.Nodes[0]}
}

// View is a region of a Page. Lookups are scoped to the region.
type View struct {
	page *Page
	root *html.Node
}

// Root returns the region's root node.
func (v *View) Root() *html.Node {
	return v.root
}

// Attached reports whether the region is still part of its page.
func (v *View) Attached() bool {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	top := v.page.doc.Nodes[0]
	for n := v.root; n != nil; n = n.Parent {
		if n == top {
			return true
		}
	}
	return false
}

func (v *View) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(v.root).Selection
}

// wrapper returns the voting wrapper: the root itself or its first descendant match.
func (v *View) wrapper() *goquery.Selection {
	s := v.sel()
	if s.Is(WrapperSelector) {
		return s
	}
	return s.Find(WrapperSelector).First()
}

// IssueKey reads the issue key from the live wrapper.
func (v *View) IssueKey() string {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	return strings.TrimSpace(v.wrapper().AttrOr("data-issue-key", ""))
}

// Card is a vote card.
type Card struct {
	Value  string
	Active bool
}

// Cards returns the cards inside the region.
func (v *View) Cards() []Card {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	return v.cards()
}

func (v *View) cards() []Card {
	var cards []Card
	v.sel().Find(cardSelector).Each(func(_ int, s *goquery.Selection) {
		cards = append(cards, Card{Value: cardValue(s), Active: s.HasClass("active")})
	})
	return cards
}

func cardValue(s *goquery.Selection) string {
	if value, ok := s.Attr("data-value"); ok {
		return value
	}
	return strings.TrimSpace(s.Text())
}

// HasCard reports whether a card with value is present.
func (v *View) HasCard(value string) bool {
	for _, c := range v.Cards() {
		if c.Value == value {
			return true
		}
	}
	return false
}

// SelectCard marks value as the only active card and returns the previously
// active value. An empty value clears the selection.
func (v *View) SelectCard(value string) string {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()

	cards := v.sel().Find(cardSelector)
	previous := ""
	if active := cards.Filter(".active").First(); active.Length() > 0 {
		previous = cardValue(active)
	}
	cards.RemoveClass("active")
	if value != "" {
		cards.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return cardValue(s) == value
		}).First().AddClass("active")
	}
	return previous
}

// Comment returns the text of the comment box.
func (v *View) Comment() string {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	box := v.sel().Find(commentSelector).First()
	if box.Is("textarea") {
		return box.Text()
	}
	return box.AttrOr("value", "")
}

// SetComment writes the comment box. It returns false if the region has none.
func (v *View) SetComment(text string) bool {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	box := v.sel().Find(commentSelector).First()
	switch {
	case box.Length() == 0:
		return false
	case box.Is("textarea"):
		box.SetText(text)
	default:
		box.SetAttr("value", text)
	}
	return true
}

// Instant reports the wrapper's instant-mode flag.
func (v *View) Instant() bool {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	return v.wrapper().AttrOr("data-is-instant", "") == "true"
}

// Creator reports whether the viewing user created the session.
func (v *View) Creator() bool {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	return v.wrapper().AttrOr("data-is-creator", "") == "true"
}

// EndSessionControl reports whether the end-session button exists and
// whether its container is visible.
func (v *View) EndSessionControl() (present, visible bool) {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	s := v.sel()
	if s.Find(endButtonSelector).Length() == 0 {
		return false, false
	}
	container := s.Find(endContainerSelector).First()
	if container.Length() == 0 {
		return true, true
	}
	return true, !hidden(container)
}

// RevealEndSession shows the end-session container.
func (v *View) RevealEndSession() {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	container := v.sel().Find(endContainerSelector).First()
	container.RemoveAttr("hidden").RemoveClass("hidden")
	if style, ok := container.Attr("style"); ok {
		container.SetAttr("style", stripDisplayNone(style))
	}
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok || s.HasClass("hidden") {
		return true
	}
	return stripDisplayNone(s.AttrOr("style", "")) != s.AttrOr("style", "")
}

func stripDisplayNone(style string) string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		name, value, _ := strings.Cut(decl, ":")
		if strings.TrimSpace(name) == "display" && strings.TrimSpace(value) == "none" {
			continue
		}
		if strings.TrimSpace(decl) != "" {
			kept = append(kept, strings.TrimSpace(decl))
		}
	}
	return strings.Join(kept, "; ")
}

// EstimateValues returns the values offered by the apply-estimate controls.
func (v *View) EstimateValues() []string {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	return v.estimates()
}

func (v *View) estimates() []string {
	return v.sel().Find(estimateSelector).Map(func(_ int, s *goquery.Selection) string {
		return s.AttrOr("data-value", "")
	})
}

// Result is one row of the results table.
type Result struct {
	Voter   string
	Value   string
	Comment string
}

// Snapshot is everything a host needs to draw the region.
type Snapshot struct {
	IssueKey          string
	Instant           bool
	Creator           bool
	State             string
	Message           string
	Cards             []Card
	Comment           string
	EndSessionVisible bool
	Voters            []string
	Results           []Result
	Stats             models.SessionStats
	Estimates         []string
	FinalEstimate     string
}

// Snapshot reads the whole region under one lock.
func (v *View) Snapshot() Snapshot {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()

	s := v.sel()
	w := v.wrapper()
	snap := Snapshot{
		IssueKey:      w.AttrOr("data-issue-key", ""),
		Instant:       w.AttrOr("data-is-instant", "") == "true",
		Creator:       w.AttrOr("data-is-creator", "") == "true",
		State:         w.AttrOr("data-state", ""),
		Message:       strings.TrimSpace(s.Find(".poker-message").Text()),
		Cards:         v.cards(),
		Estimates:     v.estimates(),
		FinalEstimate: s.Find(".final-estimate").AttrOr("data-value", ""),
	}

	box := s.Find(commentSelector).First()
	if box.Is("textarea") {
		snap.Comment = box.Text()
	} else {
		snap.Comment = box.AttrOr("value", "")
	}

	if s.Find(endButtonSelector).Length() > 0 {
		container := s.Find(endContainerSelector).First()
		snap.EndSessionVisible = container.Length() == 0 || !hidden(container)
	}

	s.Find(".voters li").Each(func(_ int, li *goquery.Selection) {
		snap.Voters = append(snap.Voters, strings.TrimSpace(li.Text()))
	})
	s.Find(".results tr.vote").Each(func(_ int, tr *goquery.Selection) {
		snap.Results = append(snap.Results, Result{
			Voter:   strings.TrimSpace(tr.Find(".voter").Text()),
			Value:   strings.TrimSpace(tr.Find(".vote-value").Text()),
			Comment: strings.TrimSpace(tr.Find(".vote-comment").Text()),
		})
	})

	if stats := s.Find(".stats").First(); stats.Length() > 0 {
		snap.Stats.Min, _ = strconv.ParseFloat(stats.AttrOr("data-min", ""), 64)
		snap.Stats.Max, _ = strconv.ParseFloat(stats.AttrOr("data-max", ""), 64)
		snap.Stats.Average, _ = strconv.ParseFloat(stats.AttrOr("data-average", ""), 64)
		snap.Stats.Count, _ = strconv.Atoi(stats.AttrOr("data-count", ""))
	}
	return snap
}

// extractWrapper parses a fragment and detaches its voting wrapper. The
// fragment's top-level elements are checked before their descendants.
func extractWrapper(src string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, err
	}
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	roots := goquery.NewDocumentFromNode(container).Children()
	found := roots.Filter(WrapperSelector)
	if found.Length() == 0 {
		found = roots.Find(WrapperSelector)
	}
	if found.Length() == 0 {
		return nil, ErrWrapperNotFound
	}

	n := found.Nodes[0]
	n.Parent.RemoveChild(n)
	return n, nil
}

// replaceWrapper swaps the live wrapper of v for n in one step.
func (v *View) replaceWrapper(n *html.Node) error {
	v.page.mu.Lock()
	defer v.page.mu.Unlock()
	w := v.wrapper()
	if w.Length() == 0 || w.Nodes[0].Parent == nil {
		return errors.New("no live voting wrapper to replace")
	}
	old := w.Nodes[0]
	old.Parent.InsertBefore(n, old)
	old.Parent.RemoveChild(old)
	return nil
}
