// Package mdrender renders Markdown to HTML and enhances it in place.
//
// # Quick Start
//
// Render a string, with no page involved:
//
//	r, err := mdrender.NewRenderer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	html, err := r.RenderToHTML(ctx, "# Hello\n\nWorld")
//
// Render into a page and enhance the result:
//
//	page, _ := mdrender.ParsePageString(`<body><div id="out"></div></body>`)
//	res, err := r.Render(ctx, markdown, page, "#out")
//	// page now holds highlighted code, copy buttons, diagram and math markup
//
// # Rendering Pipeline
//
// RenderToHTML runs these stages:
//
//  1. Preprocessing (a pass-through unless WithLLMCleanup or AddTransform)
//  2. Markdown to HTML via Goldmark (GFM, footnotes, heading IDs, math)
//  3. Special blocks (diagram fences are left for the lifecycle passes)
//  4. Sanitizing via bluemonday (disable with WithoutSanitize)
//  5. Math tagging, when WithMathMode(MathRegex) is set
//
// Render and RenderNode write that output into an element, then run the
// enhancement passes in order: highlight, copy-buttons, diagrams, math.
// Each pass has a FailurePolicy: BestEffort failures are logged, Fatal
// failures are returned. Plugins add passes with AddPass.
//
// # Diagram and Math Engines
//
// Engines load on first use and stay loaded for the renderer's lifetime.
// The default engines reference mermaid and MathJax from the page so the
// reader's browser renders them. A BrowserEngine renders them ahead of
// time, in headless Chrome, to static SVG:
//
//	eng := mdrender.NewBrowserEngine()
//	defer eng.Close()
//	r, err := mdrender.NewRenderer(
//	    mdrender.WithDiagramEngine(eng.Diagrams()),
//	    mdrender.WithMathEngine(eng.Math()),
//	)
//
// # Elements and Live Preview
//
// UpgradeElements renders every <markdown-renderer> element of a page into
// its shadow root. AutoRenderAll renders <script type="text/markdown"> and
// <template data-type="markdown"> sources. RenderLive re-renders a target
// whenever an InputSource changes, debounced.
//
// # Browser Requirements
//
// BrowserEngine requires Chrome/Chromium. The go-rod library automatically
// downloads a managed Chromium instance on first run (~/.cache/rod/browser/).
// Use ROD_BROWSER_BIN to specify a custom Chrome binary.
package mdrender
