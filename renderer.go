package mdrender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/alnah/go-mdrender/internal/pipeline"
)

// TracerName identifies this package's spans.
const TracerName = "github.com/alnah/go-mdrender"

var tracer = otel.Tracer(TracerName)

// Renderer turns markdown into HTML and writes it into pages.
// A Renderer is safe for concurrent use.
type Renderer struct {
	cfg rendererConfig

	converter pipeline.HTMLConverter
	special   pipeline.SpecialBlockStage
	sanitizer pipeline.Sanitizer

	diagram *capability
	math    *capability

	mu           sync.RWMutex
	theme        Theme
	preprocessor *pipeline.Preprocessor
	passes       []Pass

	// In-flight tokens: the newest render per target node.
	generation atomic.Uint64
	inflightMu sync.Mutex
	inflight   map[*html.Node]uint64
}

// NewRenderer creates a Renderer. Plugins are set up last, in order; the
// first Setup error is returned.
func NewRenderer(opts ...Option) (*Renderer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.theme.Validate(); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.diagramEngine == nil {
		cfg.diagramEngine = NewScriptDiagramEngine(cfg.mermaidURL, cfg.httpClient, cfg.inlineScripts)
	}
	if cfg.mathEngine == nil {
		cfg.mathEngine = NewScriptMathEngine(cfg.mathJaxURL, cfg.httpClient, cfg.inlineScripts)
	}

	r := &Renderer{
		cfg:       cfg,
		converter: pipeline.NewGoldmarkConverter(converterOptions(cfg)...),
		special:   pipeline.DeferredSpecialBlocks{},
		sanitizer: pipeline.NewSanitizer(),
		theme:     cfg.theme,
		inflight:  make(map[*html.Node]uint64),
	}
	if cfg.llmCleanup {
		r.preprocessor = pipeline.NewLLMPreprocessor()
	} else {
		r.preprocessor = pipeline.NewPreprocessor()
	}
	r.passes = r.defaultPasses()
	r.diagram = r.newDiagramCapability()
	r.math = r.newMathCapability()

	for _, p := range cfg.plugins {
		if err := p.Setup(r); err != nil {
			return nil, fmt.Errorf("setting up plugin %s: %w", p.Name(), err)
		}
	}

	return r, nil
}

func converterOptions(cfg rendererConfig) []pipeline.ConverterOption {
	opts := []pipeline.ConverterOption{pipeline.WithGoldmarkOptions(cfg.parserOptions...)}
	if cfg.mathMode == MathParse {
		opts = append(opts, pipeline.WithMathParsing())
	}
	if cfg.parseHighlight {
		opts = append(opts, pipeline.WithHighlighting(styleFor(cfg.highlightStyle, cfg.theme)))
	}
	return opts
}

// Theme returns the current theme.
func (r *Renderer) Theme() Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.theme
}

// SetTheme changes the theme used by later renders.
func (r *Renderer) SetTheme(theme Theme) error {
	if err := theme.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.theme = theme
	r.mu.Unlock()
	return nil
}

// Logger returns the renderer's logger.
func (r *Renderer) Logger() *slog.Logger {
	return r.cfg.logger
}

// AddTransform appends preprocessing transforms, run after the built-in
// ones.
func (r *Renderer) AddTransform(transforms ...func(string) string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range transforms {
		r.preprocessor.Add(t)
	}
}

// AddPass appends an enhancement pass, run after the built-in ones.
func (r *Renderer) AddPass(p Pass) error {
	if p.Name == "" || p.Run == nil {
		return fmt.Errorf("invalid pass: name and Run are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, p)
	return nil
}

// Passes returns the names of the enhancement passes in run order.
func (r *Renderer) Passes() []string {
	passes := r.passSnapshot()
	names := make([]string, len(passes))
	for i, p := range passes {
		names[i] = p.Name
	}
	return names
}

func (r *Renderer) passSnapshot() []Pass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Pass(nil), r.passes...)
}

// RenderToHTML runs the conversion pipeline: preprocess, parse, special
// blocks, sanitize, math tagging. It touches no page.
func (r *Renderer) RenderToHTML(ctx context.Context, markdown string) (out string, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "mdrender.RenderToHTML")
	defer func() {
		r.cfg.metrics.observeRender(kindString, start, err)
		endSpan(span, err)
	}()

	return r.toHTML(ctx, markdown)
}

// RenderToStaticHTML returns the pipeline output without any page
// enhancement, for contexts that will not run scripts.
func (r *Renderer) RenderToStaticHTML(ctx context.Context, markdown string) (string, error) {
	return r.RenderToHTML(ctx, markdown)
}

func (r *Renderer) toHTML(ctx context.Context, markdown string) (string, error) {
	r.mu.RLock()
	content := r.preprocessor.PreprocessMarkdown(ctx, markdown)
	r.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out, err := r.converter.ToHTML(ctx, content)
	if err != nil {
		return "", err
	}

	out = r.special.ProcessSpecialBlocks(ctx, out)

	if r.cfg.sanitize {
		out = r.sanitizer.Sanitize(ctx, out)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if r.cfg.mathMode == MathRegex {
		out = pipeline.TagMathDelimiters(out)
	}
	return out, nil
}

// Render renders markdown into the first element of page matching
// selector. See RenderNode.
func (r *Renderer) Render(ctx context.Context, markdown string, page *Page, selector string) (*RenderResult, error) {
	sel, err := page.Find(selector)
	if err != nil {
		return nil, err
	}
	return r.RenderNode(ctx, markdown, page, sel.First())
}

// RenderNode renders markdown into node, an element of page: the node gets
// the markdown-body class, the pipeline output replaces its content, the
// enhancement passes run, then the completion callback.
//
// When a newer render into the same node starts before this one writes,
// this one writes nothing and returns ErrSuperseded.
func (r *Renderer) RenderNode(ctx context.Context, markdown string, page *Page, node *goquery.Selection) (res *RenderResult, err error) {
	if page == nil || node == nil || node.Length() == 0 {
		return nil, ErrTargetNotFound
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "mdrender.Render")
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("internal error: %v", rec)
		}
		r.cfg.metrics.observeRender(kindPage, start, err)
		endSpan(span, err)
	}()

	target := node.Nodes[0]
	token := r.begin(target)
	defer r.end(target, token)

	out, err := r.toHTML(ctx, markdown)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("mdrender.html_bytes", len(out)))

	el := node.First()
	err = page.Update(func(doc *goquery.Document) error {
		if r.superseded(target, token) {
			return ErrSuperseded
		}

		el.AddClass(ContainerClass)
		el.SetHtml(out)

		if err := r.runPasses(ctx, Target{Document: doc, Container: el, Theme: r.Theme()}); err != nil {
			return err
		}
		if r.cfg.onRender != nil {
			r.cfg.onRender(out, el)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RenderResult{HTML: out, Element: el}, nil
}

// PostRender runs the enhancement passes over an element already holding
// rendered HTML. Passes are idempotent, so repeating it adds nothing.
func (r *Renderer) PostRender(ctx context.Context, page *Page, node *goquery.Selection) error {
	if page == nil || node == nil || node.Length() == 0 {
		return ErrTargetNotFound
	}
	return page.Update(func(doc *goquery.Document) error {
		return r.runPasses(ctx, Target{Document: doc, Container: node.First(), Theme: r.Theme()})
	})
}

// begin registers a render into target and returns its token.
func (r *Renderer) begin(target *html.Node) uint64 {
	token := r.generation.Add(1)
	r.inflightMu.Lock()
	r.inflight[target] = token
	r.inflightMu.Unlock()
	return token
}

// end forgets target once its newest render is done.
func (r *Renderer) end(target *html.Node, token uint64) {
	r.inflightMu.Lock()
	if r.inflight[target] == token {
		delete(r.inflight, target)
	}
	r.inflightMu.Unlock()
}

func (r *Renderer) superseded(target *html.Node, token uint64) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	return r.inflight[target] != token
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
