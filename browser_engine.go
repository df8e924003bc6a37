package mdrender

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-mdrender/internal/pipeline"
	"github.com/alnah/go-mdrender/internal/process"
)

// DefaultBrowserMathURL is the MathJax build the browser engine loads. It
// produces self-contained SVG, which survives without the script.
const DefaultBrowserMathURL = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-svg.js"

// defaultBrowserTimeout bounds each engine call in the browser.
const defaultBrowserTimeout = 30 * time.Second

// Attributes marking output the browser engine already produced.
const (
	diagramRenderedAttr = "data-processed"
	mathTypesetAttr     = "data-typeset"
)

// browserMathConfig keeps MathJax from typesetting on its own.
const browserMathConfig = `() => {
  window.MathJax = {startup: {typeset: false}, svg: {fontCache: 'none'}};
}`

// BrowserEngine prerenders diagrams and math to static SVG in headless
// Chrome, so the output needs no scripts to display. One browser page hosts
// both engines; calls into it are serialized.
//
// Use Diagrams and Math to plug it into a Renderer. Close releases the
// browser.
type BrowserEngine struct {
	timeout time.Duration
	logger  *slog.Logger

	mermaid ScriptSource
	mathjax ScriptSource

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	seq      int
}

// BrowserOption configures a BrowserEngine.
type BrowserOption func(*BrowserEngine)

// WithBrowserTimeout bounds each engine call. Default: 30s.
func WithBrowserTimeout(d time.Duration) BrowserOption {
	return func(e *BrowserEngine) {
		e.timeout = d
	}
}

// WithBrowserScripts sets the mermaid and MathJax script URLs. Empty
// values keep the defaults.
func WithBrowserScripts(mermaidURL, mathURL string) BrowserOption {
	return func(e *BrowserEngine) {
		if mermaidURL != "" {
			e.mermaid.URL = mermaidURL
		}
		if mathURL != "" {
			e.mathjax.URL = mathURL
		}
	}
}

// WithBrowserHTTPClient sets the client scripts are downloaded with.
func WithBrowserHTTPClient(client *http.Client) BrowserOption {
	return func(e *BrowserEngine) {
		e.mermaid.Client = client
		e.mathjax.Client = client
	}
}

// WithBrowserLogger sets the logger. Nil selects slog.Default().
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(e *BrowserEngine) {
		e.logger = logger
	}
}

// NewBrowserEngine creates a BrowserEngine. The browser starts on first
// use.
func NewBrowserEngine(opts ...BrowserOption) *BrowserEngine {
	e := &BrowserEngine{
		timeout: defaultBrowserTimeout,
		mermaid: ScriptSource{URL: DefaultMermaidURL},
		mathjax: ScriptSource{URL: DefaultBrowserMathURL},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Diagrams returns the engine as a DiagramEngine.
func (e *BrowserEngine) Diagrams() DiagramEngine {
	return browserDiagrams{e}
}

// Math returns the engine as a MathEngine.
func (e *BrowserEngine) Math() MathEngine {
	return browserMath{e}
}

// ensurePage lazily starts the browser and opens the engine page.
// Caller holds e.mu.
func (e *BrowserEngine) ensurePage() error {
	if e.page != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		e.kill(l)
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		e.kill(l)
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	if err := page.Timeout(e.timeout).WaitLoad(); err != nil {
		_ = browser.Close()
		e.kill(l)
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	e.launcher, e.browser, e.page = l, browser, page
	e.logger.Debug("browser engine started", "pid", l.PID())
	return nil
}

// call runs fn against the engine page bound to ctx and the call timeout.
func (e *BrowserEngine) call(ctx context.Context, fn func(p *rod.Page) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensurePage(); err != nil {
		return err
	}
	return fn(e.page.Context(ctx).Timeout(e.timeout))
}

// loadScript downloads src and evaluates it in the engine page.
func (e *BrowserEngine) loadScript(ctx context.Context, src *ScriptSource, setup string) error {
	script, err := src.Fetch(ctx)
	if err != nil {
		return err
	}
	return e.call(ctx, func(p *rod.Page) error {
		if setup != "" {
			if _, err := p.Eval(setup); err != nil {
				return fmt.Errorf("%w: %v", ErrEngineInit, err)
			}
		}
		if err := p.AddScriptTag("", string(script)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrScriptLoad, src.URL, err)
		}
		return nil
	})
}

// Close shuts the browser down and kills its process group.
func (e *BrowserEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.kill(e.launcher)
	e.launcher, e.browser, e.page = nil, nil, nil
	return err
}

// kill removes any browser processes left behind by l.
func (e *BrowserEngine) kill(l *launcher.Launcher) {
	if l == nil {
		return
	}
	if pid := l.PID(); pid > 0 {
		if err := process.Terminate(pid, process.DefaultGrace); err != nil {
			e.logger.Debug("stopping browser process group", "pid", pid, "err", err)
		}
	}
	l.Cleanup()
}

type browserDiagrams struct{ e *BrowserEngine }

// Load implements DiagramEngine.
func (d browserDiagrams) Load(ctx context.Context) error {
	return d.e.loadScript(ctx, &d.e.mermaid, "")
}

// Init implements DiagramEngine.
func (d browserDiagrams) Init(ctx context.Context, config map[string]any) error {
	return d.e.call(ctx, func(p *rod.Page) error {
		_, err := p.Eval(`cfg => mermaid.initialize(Object.assign({}, cfg, {startOnLoad: false}))`, config)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEngineInit, err)
		}
		return nil
	})
}

// Attach implements DiagramEngine. Prerendered SVG needs no script.
func (browserDiagrams) Attach(*goquery.Document) error {
	return nil
}

// Render implements DiagramEngine. Each container's source is replaced by
// the SVG mermaid produces.
func (d browserDiagrams) Render(ctx context.Context, diagrams *goquery.Selection) error {
	var firstErr error
	diagrams.EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if _, done := div.Attr(diagramRenderedAttr); done {
			return true
		}
		svg, err := d.render(ctx, div.Text())
		if err != nil {
			firstErr = err
			return false
		}
		div.SetHtml(svg)
		div.SetAttr(diagramRenderedAttr, "true")
		return true
	})
	return firstErr
}

func (d browserDiagrams) render(ctx context.Context, source string) (string, error) {
	var svg string
	err := d.e.call(ctx, func(p *rod.Page) error {
		d.e.seq++
		id := fmt.Sprintf("mdrender-diagram-%d", d.e.seq)
		res, err := p.Eval(`async (id, src) => (await mermaid.render(id, src)).svg`, id, source)
		if err != nil {
			return fmt.Errorf("%w: diagram: %v", ErrEngineCall, err)
		}
		svg = res.Value.Str()
		return nil
	})
	return svg, err
}

type browserMath struct{ e *BrowserEngine }

// Load implements MathEngine.
func (m browserMath) Load(ctx context.Context) error {
	if err := m.e.loadScript(ctx, &m.e.mathjax, browserMathConfig); err != nil {
		return err
	}
	return m.e.call(ctx, func(p *rod.Page) error {
		if _, err := p.Eval(`() => MathJax.startup.promise`); err != nil {
			return fmt.Errorf("%w: %v", ErrEngineInit, err)
		}
		return nil
	})
}

// Attach implements MathEngine. Prerendered SVG needs no script.
func (browserMath) Attach(*goquery.Document) error {
	return nil
}

// Typeset implements MathEngine. Each math element's TeX is replaced by
// MathJax's SVG output.
func (m browserMath) Typeset(ctx context.Context, container *goquery.Selection) error {
	var firstErr error
	container.Find("span.math, div.math").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, done := s.Attr(mathTypesetAttr); done {
			return true
		}
		display := s.Is("div") || s.HasClass(pipeline.MathDisplayClass)
		out, err := m.typeset(ctx, s.Text(), display)
		if err != nil {
			firstErr = err
			return false
		}
		s.SetHtml(out)
		s.SetAttr(mathTypesetAttr, "true")
		return true
	})
	return firstErr
}

func (m browserMath) typeset(ctx context.Context, tex string, display bool) (string, error) {
	var out string
	err := m.e.call(ctx, func(p *rod.Page) error {
		res, err := p.Eval(`(tex, display) => MathJax.tex2svg(tex, {display}).outerHTML`, tex, display)
		if err != nil {
			return fmt.Errorf("%w: math: %v", ErrEngineCall, err)
		}
		out = res.Value.Str()
		return nil
	})
	return out, err
}

// Compile-time interface implementation checks.
var (
	_ DiagramEngine = browserDiagrams{}
	_ MathEngine    = browserMath{}
)
