package mdrender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEnsureDiagram_LoadsOnce(t *testing.T) {
	t.Parallel()

	r, diagrams, _ := newTestRenderer(t)
	page := newTestPage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.EnsureDiagram(ctx, page); err != nil {
			t.Fatalf("EnsureDiagram() error = %v", err)
		}
	}

	if diagrams.loads.Load() != 1 || diagrams.inits.Load() != 1 {
		t.Errorf("loads = %d, inits = %d, want 1 each", diagrams.loads.Load(), diagrams.inits.Load())
	}
	if diagrams.attaches.Load() != 3 {
		t.Errorf("attaches = %d, want 3", diagrams.attaches.Load())
	}
	if !r.DiagramReady() {
		t.Error("DiagramReady() = false")
	}
	if theme := diagrams.Config()["theme"]; theme != "default" {
		t.Errorf("default diagram theme = %v, want default", theme)
	}
}

func TestEnsureDiagram_ConcurrentCallersShareLoad(t *testing.T) {
	t.Parallel()

	diagrams := &fakeDiagramEngine{loadDelay: 50 * time.Millisecond}
	r, _, _ := newTestRenderer(t, WithDiagramEngine(diagrams))
	page := newTestPage(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.EnsureDiagram(context.Background(), page)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d error = %v", i, err)
		}
	}
	if diagrams.loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", diagrams.loads.Load())
	}
}

func TestEnsureMath_FailureRetries(t *testing.T) {
	t.Parallel()

	math := &fakeMathEngine{loadErr: ErrScriptLoad}
	r, _, _ := newTestRenderer(t, WithMathEngine(math))
	page := newTestPage(t)

	if err := r.EnsureMath(context.Background(), page); !errors.Is(err, ErrScriptLoad) {
		t.Fatalf("EnsureMath() error = %v, want ErrScriptLoad", err)
	}
	if r.MathReady() {
		t.Fatal("MathReady() = true after failure")
	}

	math.loadErr = nil
	if err := r.EnsureMath(context.Background(), page); err != nil {
		t.Fatalf("EnsureMath() retry error = %v", err)
	}
	if !r.MathReady() || math.loads.Load() != 2 {
		t.Errorf("MathReady() = %v, loads = %d, want true and 2", r.MathReady(), math.loads.Load())
	}
}

func TestMermaidTheme(t *testing.T) {
	t.Parallel()

	if got := mermaidTheme(ThemeDark); got != "dark" {
		t.Errorf("mermaidTheme(dark) = %q", got)
	}
	if got := mermaidTheme(ThemeLight); got != "default" {
		t.Errorf("mermaidTheme(light) = %q", got)
	}
}
