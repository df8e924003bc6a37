package mdrender

import (
	"context"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"
)

// Default engine script URLs.
const (
	DefaultMathJaxURL = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-mml-chtml.js"
	DefaultMermaidURL = "https://cdn.jsdelivr.net/npm/mermaid@10.7.0/dist/mermaid.min.js"
)

// Capability names, used in logs and metric labels.
const (
	CapabilityDiagram = "diagram"
	CapabilityMath    = "math"
)

// DiagramEngine renders diagram source held in div.mermaid elements.
//
// Load and Init run once per renderer, in that order, before any other
// call. Attach runs for every document rendered into and must be
// idempotent. Render runs for every render that produced diagrams.
type DiagramEngine interface {
	Load(ctx context.Context) error
	Init(ctx context.Context, config map[string]any) error
	Attach(doc *goquery.Document) error
	Render(ctx context.Context, diagrams *goquery.Selection) error
}

// MathEngine typesets span.math and div.math elements.
//
// Load runs once per renderer. Attach runs for every document rendered
// into and must be idempotent. Typeset runs for every render that
// produced math.
type MathEngine interface {
	Load(ctx context.Context) error
	Attach(doc *goquery.Document) error
	Typeset(ctx context.Context, container *goquery.Selection) error
}

// capability is a one-time initialization guarded by a readiness latch.
// Concurrent first calls share a single load; the latch is set only when
// the load succeeds and is never reset.
type capability struct {
	name  string
	load  func(ctx context.Context) error
	ready atomic.Bool
	group singleflight.Group
	loads atomic.Int64
}

func (c *capability) ensure(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}

	_, err, _ := c.group.Do(c.name, func() (any, error) {
		if c.ready.Load() {
			return nil, nil
		}
		c.loads.Add(1)
		if err := c.load(ctx); err != nil {
			return nil, err
		}
		c.ready.Store(true)
		return nil, nil
	})
	return err
}

// DiagramReady reports whether the diagram engine has been loaded and
// initialized.
func (r *Renderer) DiagramReady() bool {
	return r.diagram.ready.Load()
}

// MathReady reports whether the math engine has been loaded.
func (r *Renderer) MathReady() bool {
	return r.math.ready.Load()
}

// EnsureDiagram loads and initializes the diagram engine on first call and
// attaches it to page. Later calls only attach.
func (r *Renderer) EnsureDiagram(ctx context.Context, page *Page) error {
	if err := r.diagram.ensure(ctx); err != nil {
		return err
	}
	return page.Update(r.cfg.diagramEngine.Attach)
}

// EnsureMath loads the math engine on first call and attaches it to page.
// Later calls only attach.
func (r *Renderer) EnsureMath(ctx context.Context, page *Page) error {
	if err := r.math.ensure(ctx); err != nil {
		return err
	}
	return page.Update(r.cfg.mathEngine.Attach)
}

func (r *Renderer) newDiagramCapability() *capability {
	c := &capability{name: CapabilityDiagram}
	c.load = func(ctx context.Context) error {
		engine := r.cfg.diagramEngine
		err := engine.Load(ctx)
		if err == nil {
			err = engine.Init(ctx, r.diagramInitConfig())
		}
		r.cfg.metrics.capabilityLoaded(CapabilityDiagram, err)
		if err != nil {
			r.cfg.logger.Warn("diagram engine unavailable", "err", err)
		}
		return err
	}
	return c
}

func (r *Renderer) newMathCapability() *capability {
	c := &capability{name: CapabilityMath}
	c.load = func(ctx context.Context) error {
		err := r.cfg.mathEngine.Load(ctx)
		r.cfg.metrics.capabilityLoaded(CapabilityMath, err)
		if err != nil {
			r.cfg.logger.Warn("math engine unavailable", "err", err)
		}
		return err
	}
	return c
}

// diagramInitConfig returns the caller's diagram options, or a theme-only
// configuration when none were given.
func (r *Renderer) diagramInitConfig() map[string]any {
	if r.cfg.diagramConfig != nil {
		return r.cfg.diagramConfig
	}
	return map[string]any{"theme": mermaidTheme(r.Theme())}
}

// mermaidTheme maps a renderer theme onto a mermaid theme name.
func mermaidTheme(t Theme) string {
	if t.IsDark() {
		return "dark"
	}
	return "default"
}
