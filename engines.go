package mdrender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/alnah/go-mdrender/internal/pipeline"
)

// maxScriptSize caps downloaded engine scripts.
const maxScriptSize = 16 << 20

// defaultFetchTimeout bounds script downloads when the caller supplies no
// HTTP client.
const defaultFetchTimeout = 30 * time.Second

// Compile-time interface implementation checks.
var (
	_ DiagramEngine = (*ScriptDiagramEngine)(nil)
	_ MathEngine    = (*ScriptMathEngine)(nil)
)

// ScriptSource downloads an engine script once and keeps its bytes.
type ScriptSource struct {
	URL    string
	Client *http.Client

	mu     sync.Mutex
	script []byte
}

// Fetch downloads the script on first call and returns the cached bytes
// afterwards. Failures are not cached.
func (s *ScriptSource) Fetch(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.script != nil {
		return s.script, nil
	}

	b, err := fetchScript(ctx, s.client(), s.URL)
	if err != nil {
		return nil, err
	}
	s.script = b
	return b, nil
}

// Bytes returns the cached script, or nil before a successful Fetch.
func (s *ScriptSource) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

func (s *ScriptSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: defaultFetchTimeout}
}

func fetchScript(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptLoad, url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptLoad, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrScriptLoad, url, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptLoad, url, err)
	}
	return b, nil
}

// ScriptDiagramEngine runs mermaid in the reader's browser. Load checks
// the script is reachable, Attach references it from the document head
// (or inlines it) followed by an initialize call, and mermaid renders the
// div.mermaid elements when the page loads.
type ScriptDiagramEngine struct {
	src    ScriptSource
	inline bool

	mu       sync.Mutex
	initCall string
}

// NewScriptDiagramEngine creates an engine loading mermaid from url.
// With inline set, Attach embeds the script text instead of linking it.
func NewScriptDiagramEngine(url string, client *http.Client, inline bool) *ScriptDiagramEngine {
	return &ScriptDiagramEngine{
		src:    ScriptSource{URL: url, Client: client},
		inline: inline,
	}
}

// Load implements DiagramEngine.
func (e *ScriptDiagramEngine) Load(ctx context.Context) error {
	_, err := e.src.Fetch(ctx)
	return err
}

// Init implements DiagramEngine.
func (e *ScriptDiagramEngine) Init(_ context.Context, config map[string]any) error {
	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("%w: diagram config: %v", ErrEngineInit, err)
	}

	e.mu.Lock()
	e.initCall = "mermaid.initialize(" + string(b) + ");"
	e.mu.Unlock()
	return nil
}

// Attach implements DiagramEngine.
func (e *ScriptDiagramEngine) Attach(doc *goquery.Document) error {
	e.mu.Lock()
	initCall := e.initCall
	e.mu.Unlock()

	head := headOf(doc)
	if e.inline {
		ensureScript(head, "mermaid", "", string(e.src.Bytes()))
	} else {
		ensureScript(head, "mermaid", e.src.URL, "")
	}
	if initCall != "" {
		ensureScript(head, "mermaid-init", "", initCall)
	}
	return nil
}

// Render implements DiagramEngine. The diagrams are rendered by the
// browser at page load, so nothing happens here.
func (e *ScriptDiagramEngine) Render(ctx context.Context, _ *goquery.Selection) error {
	return ctx.Err()
}

// mathJaxConfig restricts MathJax to math containers and to the delimiters
// Typeset writes.
const mathJaxConfig = `window.MathJax = {
  tex: {inlineMath: [['\\(', '\\)']], displayMath: [['\\[', '\\]']]},
  options: {ignoreHtmlClass: 'markdown-body', processHtmlClass: 'math'}
};`

// ScriptMathEngine runs MathJax in the reader's browser. Typeset wraps
// each expression in TeX delimiters so MathJax typesets it at page load.
type ScriptMathEngine struct {
	src    ScriptSource
	inline bool
}

// NewScriptMathEngine creates an engine loading MathJax from url.
// With inline set, Attach embeds the script text instead of linking it.
func NewScriptMathEngine(url string, client *http.Client, inline bool) *ScriptMathEngine {
	return &ScriptMathEngine{
		src:    ScriptSource{URL: url, Client: client},
		inline: inline,
	}
}

// Load implements MathEngine.
func (e *ScriptMathEngine) Load(ctx context.Context) error {
	_, err := e.src.Fetch(ctx)
	return err
}

// Attach implements MathEngine.
func (e *ScriptMathEngine) Attach(doc *goquery.Document) error {
	head := headOf(doc)
	ensureScript(head, "mathjax-config", "", mathJaxConfig)
	if e.inline {
		ensureScript(head, "mathjax", "", string(e.src.Bytes()))
	} else {
		ensureScript(head, "mathjax", e.src.URL, "", html.Attribute{Key: "async"})
	}
	return nil
}

// Typeset implements MathEngine.
func (e *ScriptMathEngine) Typeset(ctx context.Context, container *goquery.Selection) error {
	container.Find("span.math, div.math").Each(func(_ int, s *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		display := s.Is("div") || s.HasClass(pipeline.MathDisplayClass)
		s.SetText(wrapTeX(s.Text(), display))
	})
	return ctx.Err()
}

// wrapTeX adds \( \) or \[ \] delimiters unless already present.
func wrapTeX(tex string, display bool) string {
	left, right := `\(`, `\)`
	if display {
		left, right = `\[`, `\]`
	}
	if strings.HasPrefix(tex, left) && strings.HasSuffix(tex, right) {
		return tex
	}
	return left + tex + right
}
