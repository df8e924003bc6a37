package mdrender

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// fakeDiagramEngine records calls instead of running mermaid.
type fakeDiagramEngine struct {
	loadErr   error
	loadDelay time.Duration

	loads    atomic.Int32
	inits    atomic.Int32
	attaches atomic.Int32

	mu       sync.Mutex
	config   map[string]any
	rendered []string
}

func (f *fakeDiagramEngine) Load(ctx context.Context) error {
	f.loads.Add(1)
	if f.loadDelay > 0 {
		select {
		case <-time.After(f.loadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.loadErr
}

func (f *fakeDiagramEngine) Init(_ context.Context, config map[string]any) error {
	f.inits.Add(1)
	f.mu.Lock()
	f.config = config
	f.mu.Unlock()
	return nil
}

func (f *fakeDiagramEngine) Attach(*goquery.Document) error {
	f.attaches.Add(1)
	return nil
}

func (f *fakeDiagramEngine) Render(_ context.Context, diagrams *goquery.Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	diagrams.Each(func(_ int, s *goquery.Selection) {
		f.rendered = append(f.rendered, s.Text())
	})
	return nil
}

func (f *fakeDiagramEngine) Rendered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rendered...)
}

func (f *fakeDiagramEngine) Config() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

// fakeMathEngine records calls instead of running MathJax.
type fakeMathEngine struct {
	loadErr error

	loads    atomic.Int32
	typesets atomic.Int32

	mu   sync.Mutex
	seen []string
}

func (f *fakeMathEngine) Load(context.Context) error {
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeMathEngine) Attach(*goquery.Document) error {
	return nil
}

func (f *fakeMathEngine) Typeset(_ context.Context, container *goquery.Selection) error {
	f.typesets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	container.Find("span.math, div.math").Each(func(_ int, s *goquery.Selection) {
		f.seen = append(f.seen, s.Text())
	})
	return nil
}

func (f *fakeMathEngine) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

// newTestRenderer builds a renderer with fake engines and a silent logger.
func newTestRenderer(t *testing.T, opts ...Option) (*Renderer, *fakeDiagramEngine, *fakeMathEngine) {
	t.Helper()

	diagrams := &fakeDiagramEngine{}
	math := &fakeMathEngine{}
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithDiagramEngine(diagrams),
		WithMathEngine(math),
	}

	r, err := NewRenderer(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r, diagrams, math
}

// newTestPage returns a page with an empty #out target.
func newTestPage(t *testing.T) *Page {
	t.Helper()

	page, err := ParsePageString(`<!DOCTYPE html><html><head></head><body><div id="out"></div></body></html>`)
	if err != nil {
		t.Fatalf("ParsePageString() error = %v", err)
	}
	return page
}

// count returns how many elements of page match selector.
func count(t *testing.T, page *Page, selector string) int {
	t.Helper()

	n := 0
	_ = page.Update(func(doc *goquery.Document) error {
		n = doc.Find(selector).Length()
		return nil
	})
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
