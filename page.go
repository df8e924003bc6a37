package mdrender

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute used to tag nodes the renderer injects, so repeated passes
// find and reuse them instead of inserting duplicates.
const injectedAttr = "data-mdrender"

// DarkClass marks the dark theme on the document root or element host.
const DarkClass = "dark"

// ContainerClass is added to every render target.
const ContainerClass = "markdown-body"

const blankPage = `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body></body></html>`

// Page is an in-memory HTML document that renders write into.
// All access to the document goes through the page lock, so renders into
// the same page from different goroutines never interleave their writes.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// NewPage creates an empty HTML5 page.
func NewPage() *Page {
	p, err := ParsePageString(blankPage)
	if err != nil {
		panic(fmt.Sprintf("parsing blank page: %v", err))
	}
	return p
}

// ParsePage parses an HTML document.
func ParsePage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageInvalid, err)
	}
	return &Page{doc: doc}, nil
}

// ParsePageString parses an HTML document held in a string.
func ParsePageString(s string) (*Page, error) {
	return ParsePage(strings.NewReader(s))
}

// Find returns the elements matching a CSS selector.
// Returns ErrInvalidSelector for malformed selectors and ErrTargetNotFound
// when nothing matches.
func (p *Page) Find(selector string) (*goquery.Selection, error) {
	m, err := compileSelector(selector)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.doc.FindMatcher(m)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, selector)
	}
	return sel, nil
}

// Update runs fn with exclusive access to the document.
func (p *Page) Update(fn func(doc *goquery.Document) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.doc)
}

// HTML serializes the whole document.
func (p *Page) HTML() (string, error) {
	var buf strings.Builder
	if _, err := p.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteTo serializes the whole document to w.
func (p *Page) WriteTo(w io.Writer) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cw := &countingWriter{w: w}
	for _, n := range p.doc.Nodes {
		if err := html.Render(cw, n); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

// InnerHTML returns the inner HTML of the first element matching selector.
func (p *Page) InnerHTML(selector string) (string, error) {
	sel, err := p.Find(selector)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return sel.First().Html()
}

// SetTheme toggles the dark class on the document root.
func (p *Page) SetTheme(theme Theme) {
	p.mu.Lock()
	defer p.mu.Unlock()
	applyThemeClass(p.doc.Find("html"), theme)
}

// HeadMarkup returns the serialized <head>, used to detect changes to
// injected scripts and stylesheets.
func (p *Page) HeadMarkup() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, _ := goquery.OuterHtml(p.doc.Find("head").First())
	return s
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func compileSelector(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}
	return m, nil
}

// The helpers below operate on an already locked document.

func applyThemeClass(sel *goquery.Selection, theme Theme) {
	if theme.IsDark() {
		sel.AddClass(DarkClass)
	} else {
		sel.RemoveClass(DarkClass)
	}
}

// headOf returns the document head, creating it if the parser did not.
func headOf(doc *goquery.Document) *goquery.Selection {
	head := doc.Find("head").First()
	if head.Length() > 0 {
		return head
	}
	root := doc.Find("html").First()
	if root.Length() == 0 {
		return doc.Selection
	}
	n := newElement(atom.Head)
	root.Nodes[0].InsertBefore(n, root.Nodes[0].FirstChild)
	return goquery.NewDocumentFromNode(n).Selection
}

// hasInjected reports whether a node tagged with key exists under sel.
func hasInjected(sel *goquery.Selection, key string) bool {
	return sel.Find("[" + injectedAttr + `="` + key + `"]`).Length() > 0
}

// ensureScript appends a <script> tagged with key to parent unless one
// already exists. src and body are mutually exclusive; body is written as
// raw script text. Returns true when a script was added.
func ensureScript(parent *goquery.Selection, key, src, body string, extra ...html.Attribute) bool {
	if parent.Length() == 0 || hasInjected(parent, key) {
		return false
	}

	attrs := []html.Attribute{{Key: injectedAttr, Val: key}}
	if src != "" {
		attrs = append(attrs, html.Attribute{Key: "src", Val: src})
	}
	attrs = append(attrs, extra...)

	n := newElement(atom.Script, attrs...)
	if body != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScriptText(body)})
	}
	parent.Nodes[0].AppendChild(n)
	return true
}

// ensureStylesheet appends <link rel="stylesheet"> to parent unless one
// with the same href exists. Returns true when a link was added.
func ensureStylesheet(parent *goquery.Selection, key, href string) bool {
	if parent.Length() == 0 {
		return false
	}
	exists := false
	parent.Find(`link[rel="stylesheet"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("href"); v == href {
			exists = true
		}
		return !exists
	})
	if exists {
		return false
	}

	n := newElement(atom.Link,
		html.Attribute{Key: "rel", Val: "stylesheet"},
		html.Attribute{Key: "href", Val: href},
		html.Attribute{Key: injectedAttr, Val: key},
	)
	parent.Nodes[0].AppendChild(n)
	return true
}

// ensureStyle appends an inline <style> tagged with key unless present.
func ensureStyle(parent *goquery.Selection, key, css string) bool {
	if parent.Length() == 0 || hasInjected(parent, key) {
		return false
	}
	n := newElement(atom.Style, html.Attribute{Key: injectedAttr, Val: key})
	n.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	parent.Nodes[0].AppendChild(n)
	return true
}

func newElement(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

// escapeScriptText keeps inlined script text from closing its element early.
func escapeScriptText(s string) string {
	return strings.ReplaceAll(s, "</script", `<\/script`)
}
