package mdrender

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/alnah/go-mdrender/internal/assets"
)

// Output formats for whole documents.
const (
	// FormatFragment is the bare pipeline output.
	FormatFragment = "fragment"

	// FormatStandalone is a complete page linking its stylesheet and scripts.
	FormatStandalone = "standalone"

	// FormatSelfContained is a complete page with stylesheet and scripts
	// inlined.
	FormatSelfContained = "self-contained"
)

// defaultTitle is used when neither options nor content name the document.
const defaultTitle = "Document"

// DocumentOptions shapes a complete page built by RenderDocument.
type DocumentOptions struct {
	// Title is the page title. Empty uses the first heading.
	Title string

	// Lang is the html lang attribute. Default: "en".
	Lang string

	// StylesheetHref is the linked stylesheet. Default: ThemesStylesheet.
	StylesheetHref string

	// InlineCSS embeds the built-in stylesheet instead of linking it.
	InlineCSS bool

	// ExtraCSS is appended to the inlined stylesheet.
	ExtraCSS string

	// Live connects the page to a preview server for pushed updates.
	Live bool
}

// pageData feeds the page template.
type pageData struct {
	Lang           string
	Dark           bool
	Title          string
	InlineCSS      template.CSS
	StylesheetHref string
	HeadExtra      []template.HTML
	Live           bool
	Body           template.HTML
	BodyScripts    []template.JS
}

var (
	pageTemplateOnce sync.Once
	pageTemplate     *template.Template
	pageTemplateErr  error
)

func loadPageTemplate() (*template.Template, error) {
	pageTemplateOnce.Do(func() {
		src, err := assets.LoadTemplate(assets.PageTemplate)
		if err != nil {
			pageTemplateErr = err
			return
		}
		pageTemplate, pageTemplateErr = template.New(assets.PageTemplate).Parse(src)
	})
	return pageTemplate, pageTemplateErr
}

// NewDocumentPage builds an empty page from the page template, with an
// <article class="markdown-body"> to render into.
func NewDocumentPage(theme Theme, opts DocumentOptions) (*Page, error) {
	tmpl, err := loadPageTemplate()
	if err != nil {
		return nil, fmt.Errorf("loading page template: %w", err)
	}

	data := pageData{
		Lang:           opts.Lang,
		Dark:           theme.IsDark(),
		Title:          opts.Title,
		StylesheetHref: opts.StylesheetHref,
		Live:           opts.Live,
	}
	if data.Lang == "" {
		data.Lang = "en"
	}
	if data.StylesheetHref == "" {
		data.StylesheetHref = ThemesStylesheet
	}
	if opts.InlineCSS {
		css, err := assets.LoadStyle(assets.ThemesStyle)
		if err != nil {
			return nil, fmt.Errorf("loading stylesheet: %w", err)
		}
		data.InlineCSS = template.CSS(css + opts.ExtraCSS) // #nosec G203 -- built-in and caller-supplied CSS
	}
	if opts.Live {
		js, err := assets.LoadScript(assets.LiveScript)
		if err != nil {
			return nil, fmt.Errorf("loading live script: %w", err)
		}
		data.BodyScripts = append(data.BodyScripts, template.JS(js)) // #nosec G203 -- built-in script
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return ParsePageString(buf.String())
}

// RenderDocument renders markdown into a fresh page built from the page
// template and returns the page.
func (r *Renderer) RenderDocument(ctx context.Context, markdown string, opts DocumentOptions) (*Page, error) {
	page, err := NewDocumentPage(r.Theme(), opts)
	if err != nil {
		return nil, err
	}

	if _, err := r.Render(ctx, markdown, page, "article."+ContainerClass); err != nil {
		return nil, err
	}

	if opts.Title == "" {
		_ = page.Update(func(doc *goquery.Document) error {
			title := strings.TrimSpace(doc.Find("article h1").First().Text())
			if title == "" {
				title = defaultTitle
			}
			doc.Find("head > title").First().SetText(title)
			return nil
		})
	}
	return page, nil
}
