package mdrender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementName is the custom element tag rendered by Element.
const ElementName = "markdown-renderer"

// ThemeAttr is the attribute Element observes.
const ThemeAttr = "theme"

// ThemesStylesheet is the stylesheet every element's shadow root links.
const ThemesStylesheet = "themes.css"

const shadowRootSelector = "template[shadowrootmode]"

// Element is a <markdown-renderer> custom element: a host element in a page
// whose text content is markdown, rendered into a declarative shadow root
// (<template shadowrootmode="open">) by a renderer the element owns.
type Element struct {
	page     *Page
	host     *goquery.Selection
	renderer *Renderer

	mu    sync.Mutex
	theme Theme
}

// NewElement creates the shadow root on host, unless it has one, and the
// element's renderer. A theme attribute already on host is applied as if
// it had just changed.
func NewElement(page *Page, host *goquery.Selection, opts ...Option) (*Element, error) {
	if page == nil || host == nil || host.Length() == 0 {
		return nil, ErrTargetNotFound
	}

	renderer, err := NewRenderer(opts...)
	if err != nil {
		return nil, err
	}

	e := &Element{
		page:     page,
		host:     host.First(),
		renderer: renderer,
		theme:    renderer.Theme(),
	}

	var initial string
	err = page.Update(func(*goquery.Document) error {
		e.shadowRoot()
		initial, _ = e.host.Attr(ThemeAttr)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if initial != "" {
		theme, err := ParseTheme(initial)
		if err != nil {
			return nil, err
		}
		if err := e.setTheme(theme); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Renderer returns the element's renderer.
func (e *Element) Renderer() *Renderer {
	return e.renderer
}

// Theme returns the element's theme.
func (e *Element) Theme() Theme {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.theme
}

// Connect applies the theme and renders the element's text content.
func (e *Element) Connect(ctx context.Context) (*RenderResult, error) {
	if err := e.applyTheme(); err != nil {
		return nil, err
	}
	return e.render(ctx)
}

// AttributeChanged reacts to a change of an observed attribute. Only theme
// is observed; an unchanged value does nothing.
func (e *Element) AttributeChanged(ctx context.Context, name, oldValue, newValue string) error {
	if name != ThemeAttr || oldValue == newValue {
		return nil
	}

	theme, err := ParseTheme(newValue)
	if err != nil {
		return err
	}
	if err := e.setTheme(theme); err != nil {
		return err
	}
	if err := e.applyTheme(); err != nil {
		return err
	}
	_, err = e.render(ctx)
	return err
}

// SetAttribute sets an attribute on the host and notifies AttributeChanged.
func (e *Element) SetAttribute(ctx context.Context, name, value string) error {
	var old string
	err := e.page.Update(func(*goquery.Document) error {
		old, _ = e.host.Attr(name)
		e.host.SetAttr(name, value)
		return nil
	})
	if err != nil {
		return err
	}
	return e.AttributeChanged(ctx, name, old, value)
}

// Value returns the element's text content, its markdown source.
func (e *Element) Value() string {
	var v string
	_ = e.page.Update(func(*goquery.Document) error {
		v = e.source()
		return nil
	})
	return v
}

// SetValue replaces the element's text content with markdown and renders
// it.
func (e *Element) SetValue(ctx context.Context, markdown string) (*RenderResult, error) {
	err := e.page.Update(func(*goquery.Document) error {
		root := e.shadowRoot()
		n := e.host.Nodes[0]
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c != root.Nodes[0] {
				n.RemoveChild(c)
			}
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: markdown})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.render(ctx)
}

func (e *Element) setTheme(theme Theme) error {
	if err := e.renderer.SetTheme(theme); err != nil {
		return err
	}
	e.mu.Lock()
	e.theme = theme
	e.mu.Unlock()
	return nil
}

// applyTheme links the stylesheet into the shadow root, once, and sets the
// dark marker class on the host.
func (e *Element) applyTheme() error {
	theme := e.Theme()
	return e.page.Update(func(*goquery.Document) error {
		ensureStylesheet(e.shadowRoot(), "themes", ThemesStylesheet)
		applyThemeClass(e.host, theme)
		return nil
	})
}

func (e *Element) render(ctx context.Context) (*RenderResult, error) {
	var (
		markdown  string
		container *goquery.Selection
	)
	err := e.page.Update(func(*goquery.Document) error {
		markdown = e.source()
		container = e.container()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.renderer.RenderNode(ctx, markdown, e.page, container)
}

// The helpers below run with the page locked.

// shadowRoot returns the host's declarative shadow root, creating it as
// the host's first child.
func (e *Element) shadowRoot() *goquery.Selection {
	if root := e.host.ChildrenFiltered(shadowRootSelector).First(); root.Length() > 0 {
		return root
	}
	n := newElement(atom.Template, html.Attribute{Key: "shadowrootmode", Val: "open"})
	host := e.host.Nodes[0]
	host.InsertBefore(n, host.FirstChild)
	return e.host.ChildrenFiltered(shadowRootSelector).First()
}

// container returns the shadow root's render target, creating it.
func (e *Element) container() *goquery.Selection {
	root := e.shadowRoot()
	if c := root.ChildrenFiltered("div." + ContainerClass).First(); c.Length() > 0 {
		return c
	}
	root.Nodes[0].AppendChild(newElement(atom.Div, html.Attribute{Key: "class", Val: ContainerClass}))
	return root.ChildrenFiltered("div." + ContainerClass).First()
}

// source returns the host's text outside its shadow root.
func (e *Element) source() string {
	var b strings.Builder
	e.host.Contents().Each(func(_ int, c *goquery.Selection) {
		if c.Is(shadowRootSelector) {
			return
		}
		b.WriteString(c.Text())
	})
	return b.String()
}

// UpgradeElements creates and connects an Element for every
// <markdown-renderer> in page, in document order.
func UpgradeElements(ctx context.Context, page *Page, opts ...Option) ([]*Element, error) {
	hosts, err := page.Find(ElementName)
	if errors.Is(err, ErrTargetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var elements []*Element
	for i := range hosts.Nodes {
		el, err := NewElement(page, hosts.Eq(i), opts...)
		if err != nil {
			return elements, fmt.Errorf("element %d: %w", i, err)
		}
		if _, err := el.Connect(ctx); err != nil {
			return elements, fmt.Errorf("element %d: %w", i, err)
		}
		elements = append(elements, el)
	}
	return elements, nil
}
