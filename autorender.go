package mdrender

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markdown sources AutoRenderAll discovers.
const (
	ScriptSourceSelector   = `script[type="text/markdown"]`
	TemplateSourceSelector = `template[data-type="markdown"]`
)

// renderedAttr marks sources AutoRenderAll already rendered.
const renderedAttr = "data-mdrender-rendered"

// AutoRenderAll renders every <script type="text/markdown"> (its text) and
// every <template data-type="markdown"> (its inner HTML) into a new <div>
// inserted right after it. One renderer serves all sources, which render
// one after another. Sources rendered by an earlier call are skipped.
func AutoRenderAll(ctx context.Context, page *Page, opts ...Option) ([]*RenderResult, error) {
	r, err := NewRenderer(opts...)
	if err != nil {
		return nil, err
	}

	type job struct {
		markdown string
		target   *goquery.Selection
	}

	var jobs []job
	err = page.Update(func(doc *goquery.Document) error {
		add := func(src *goquery.Selection, markdown string) {
			div := newElement(atom.Div)
			n := src.Nodes[0]
			n.Parent.InsertBefore(div, n.NextSibling)
			src.SetAttr(renderedAttr, "")
			jobs = append(jobs, job{markdown: markdown, target: src.Next()})
		}

		doc.Find(ScriptSourceSelector).Each(func(_ int, s *goquery.Selection) {
			if s.Is("[" + renderedAttr + "]") || s.Nodes[0].Parent == nil {
				return
			}
			add(s, s.Text())
		})
		doc.Find(TemplateSourceSelector).Each(func(_ int, s *goquery.Selection) {
			if s.Is("[" + renderedAttr + "]") || s.Nodes[0].Parent == nil {
				return
			}
			inner, err := s.Html()
			if err != nil {
				return
			}
			add(s, html.UnescapeString(inner))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*RenderResult, 0, len(jobs))
	for i, j := range jobs {
		res, err := r.RenderNode(ctx, j.markdown, page, j.target)
		if err != nil {
			return results, fmt.Errorf("source %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}
