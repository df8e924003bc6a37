package mdrender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-mdrender/internal/assets"
	"github.com/alnah/go-mdrender/internal/pipeline"
)

// FailurePolicy decides what a failing enhancement pass does to the render.
type FailurePolicy int

const (
	// BestEffort failures are logged and counted; the render continues.
	BestEffort FailurePolicy = iota

	// Fatal failures abort the render and are returned to the caller.
	Fatal
)

// String returns the policy name.
func (p FailurePolicy) String() string {
	switch p {
	case BestEffort:
		return "best_effort"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// Pass names of the built-in enhancement passes, in run order.
const (
	PassHighlight   = "highlight"
	PassCopyButtons = "copy-buttons"
	PassDiagrams    = "diagrams"
	PassMath        = "math"
)

// CopyButtonClass marks injected copy buttons.
const CopyButtonClass = "copy-btn"

// Copy button labels.
const (
	CopyLabel   = "Copy"
	CopiedLabel = "Copied!"
)

// DiagramClass marks containers holding diagram source.
const DiagramClass = "mermaid"

// Target is what an enhancement pass works on. The document is locked
// for the duration of the pass.
type Target struct {
	Document  *goquery.Document
	Container *goquery.Selection
	Theme     Theme
}

// Pass is one progressive enhancement step over a rendered container.
type Pass struct {
	Name   string
	Policy FailurePolicy
	Run    func(ctx context.Context, t Target) error
}

// defaultPasses returns the built-in passes in order.
func (r *Renderer) defaultPasses() []Pass {
	return []Pass{
		{Name: PassHighlight, Policy: BestEffort, Run: r.highlightPass},
		{Name: PassCopyButtons, Policy: BestEffort, Run: copyButtonsPass},
		{Name: PassDiagrams, Policy: Fatal, Run: r.diagramPass},
		{Name: PassMath, Policy: Fatal, Run: r.mathPass},
	}
}

// runPasses runs every pass over t in order. A Fatal failure stops the run;
// BestEffort failures are logged and counted.
func (r *Renderer) runPasses(ctx context.Context, t Target) error {
	for _, p := range r.passSnapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runPass(ctx, p, t); err != nil {
			r.cfg.metrics.passFailed(p.Name, p.Policy)
			if p.Policy == Fatal {
				return fmt.Errorf("%w: %s: %w", ErrPassFailed, p.Name, err)
			}
			r.cfg.logger.Warn("enhancement pass failed", "pass", p.Name, "err", err)
		}
	}
	return nil
}

func (r *Renderer) runPass(ctx context.Context, p Pass, t Target) (err error) {
	ctx, span := tracer.Start(ctx, "mdrender.pass", trace.WithAttributes(
		attribute.String("mdrender.pass", p.Name),
		attribute.String("mdrender.policy", p.Policy.String()),
	))
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in pass %s: %v", p.Name, rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	err = p.Run(ctx, t)
	r.cfg.logger.Debug("enhancement pass", "pass", p.Name, "elapsed", time.Since(start))
	return err
}

// highlightPass colors every code block not highlighted yet. A block that
// fails keeps its plain text and does not stop the others.
func (r *Renderer) highlightPass(ctx context.Context, t Target) error {
	var errs []error
	t.Container.Find("pre > code").Each(func(i int, code *goquery.Selection) {
		if ctx.Err() != nil || isHighlighted(code) || pipeline.IsDiagramLanguage(codeLanguage(code)) {
			return
		}
		if err := highlightBlock(code); err != nil {
			errs = append(errs, fmt.Errorf("block %d: %w", i, err))
		}
	})

	if t.Container.Find("pre.chroma").Length() > 0 {
		css, err := HighlightCSS(styleFor(r.cfg.highlightStyle, t.Theme))
		if err != nil {
			errs = append(errs, err)
		} else {
			setStyleSheet(styleScope(t.Document, t.Container), "highlight", css)
		}
	}
	return errors.Join(errs...)
}

// copyScript is the page-level click handler behind copy buttons.
var copyScript = assets.MustLoad(assets.LoadScript, assets.CopyScript)

// copyButtonsPass appends one copy button to every code block that has
// none, and makes sure the page carries the copy script.
func copyButtonsPass(_ context.Context, t Target) error {
	added := 0
	t.Container.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		if pre.Find("code").Length() == 0 || pre.ChildrenFiltered("."+CopyButtonClass).Length() > 0 {
			return
		}
		btn := newElement(atom.Button,
			html.Attribute{Key: "class", Val: CopyButtonClass},
			html.Attribute{Key: "type", Val: "button"},
			html.Attribute{Key: "aria-label", Val: "Copy code"},
		)
		btn.AppendChild(&html.Node{Type: html.TextNode, Data: CopyLabel})
		pre.Nodes[0].AppendChild(btn)
		added++
	})

	if added > 0 || t.Container.Find("."+CopyButtonClass).Length() > 0 {
		ensureScript(headOf(t.Document), "copy", "", copyScript)
	}
	return nil
}

// diagramPass replaces diagram code blocks with diagram containers and
// hands them to the diagram engine. It does nothing, and loads nothing,
// when the container has no diagram blocks. If the engine cannot be
// loaded the blocks are left as code.
func (r *Renderer) diagramPass(ctx context.Context, t Target) error {
	blocks := t.Container.Find("pre > code." + languagePrefix + pipeline.DiagramLanguage)
	if blocks.Length() == 0 {
		return nil
	}

	if err := r.diagram.ensure(ctx); err != nil {
		return err
	}
	if err := r.cfg.diagramEngine.Attach(t.Document); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	diagrams := make([]*html.Node, 0, blocks.Length())
	blocks.Each(func(_ int, code *goquery.Selection) {
		div := newElement(atom.Div, html.Attribute{Key: "class", Val: DiagramClass})
		div.AppendChild(&html.Node{Type: html.TextNode, Data: code.Text()})

		pre := code.Parent()
		pre.Nodes[0].Parent.InsertBefore(div, pre.Nodes[0])
		pre.Remove()
		diagrams = append(diagrams, div)
	})

	return r.cfg.diagramEngine.Render(ctx, t.Container.FindNodes(diagrams...))
}

// mathPass typesets the container when it holds math. It does nothing,
// and loads nothing, otherwise.
func (r *Renderer) mathPass(ctx context.Context, t Target) error {
	if t.Container.Find("span.math, div.math").Length() == 0 {
		return nil
	}

	if err := r.math.ensure(ctx); err != nil {
		return err
	}
	if err := r.cfg.mathEngine.Attach(t.Document); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	return r.cfg.mathEngine.Typeset(ctx, t.Container)
}
