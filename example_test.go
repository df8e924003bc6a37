package mdrender_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	mdrender "github.com/alnah/go-mdrender"
)

// Example renders markdown to an HTML fragment. Diagrams and math are left
// for the page's scripts.
func Example() {
	r, err := mdrender.NewRenderer()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	html, err := r.RenderToHTML(context.Background(), "# Hello World\n\nThis is a test.")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if strings.Contains(html, "<h1") {
		fmt.Println("HTML generated successfully")
	}
	// Output: HTML generated successfully
}

// ExampleRenderer_Render renders into an element of an existing page.
func ExampleRenderer_Render() {
	r, err := mdrender.NewRenderer(mdrender.WithTheme(mdrender.ThemeDark))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	page, err := mdrender.ParsePageString(`<html><head></head><body><main id="doc"></main></body></html>`)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if _, err := r.Render(context.Background(), "Some *emphasis*.", page, "#doc"); err != nil {
		fmt.Println("error:", err)
		return
	}

	html, _ := page.HTML()
	if strings.Contains(html, `class="`+mdrender.ContainerClass+`"`) {
		fmt.Println("rendered into #doc")
	}
	// Output: rendered into #doc
}

// ExampleRenderer_RenderDocument builds a complete page.
func ExampleRenderer_RenderDocument() {
	r, err := mdrender.NewRenderer()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	page, err := r.RenderDocument(context.Background(), "# Notes\n\nBody.", mdrender.DocumentOptions{
		Lang:      "fr",
		InlineCSS: true,
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	html, _ := page.HTML()
	fmt.Println(strings.Contains(html, "<title>Notes</title>"), strings.Contains(html, `lang="fr"`))
	// Output: true true
}

// ExampleRendererPool renders several documents in parallel.
func ExampleRendererPool() {
	pool := mdrender.NewRendererPool(mdrender.PoolConfig{Size: 2})
	defer pool.Close()

	docs := []string{"# One", "# Two", "# Three"}
	results := make([]string, len(docs))

	var wg sync.WaitGroup
	for i, md := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			w, err := pool.Acquire(context.Background())
			if err != nil {
				return
			}
			defer pool.Release(w)

			results[i], _ = w.RenderToHTML(context.Background(), md)
		}()
	}
	wg.Wait()

	for i, html := range results {
		fmt.Println(i, strings.Contains(html, "<h1"))
	}
	// Output:
	// 0 true
	// 1 true
	// 2 true
}

// ExampleNewMetrics records renders in a Prometheus registry.
func ExampleNewMetrics() {
	reg := prometheus.NewRegistry()
	r, err := mdrender.NewRenderer(mdrender.WithMetrics(mdrender.NewMetrics(reg)))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_, _ = r.RenderToHTML(context.Background(), "text")

	families, _ := reg.Gather()
	for _, f := range families {
		if f.GetName() == "mdrender_renders_total" {
			fmt.Println("renders counted")
		}
	}
	// Output: renders counted
}
