package mdrender

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one worker is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("renderer pool closed")

// PoolConfig configures a RendererPool.
type PoolConfig struct {
	// Size is the number of workers. Zero or less selects ResolvePoolSize(0).
	Size int

	// Prerender gives every worker its own BrowserEngine, so diagrams and
	// math come out as static SVG.
	Prerender bool

	// Options apply to every worker's renderer.
	Options []Option

	// BrowserOptions apply to every worker's BrowserEngine.
	BrowserOptions []BrowserOption
}

// Worker is a pooled renderer, with the browser engine it owns when
// prerendering.
type Worker struct {
	*Renderer
	browser *BrowserEngine
}

// Close releases the worker's browser, if any.
func (w *Worker) Close() error {
	if w.browser != nil {
		return w.browser.Close()
	}
	return nil
}

// RendererPool manages workers for parallel rendering. Each prerendering
// worker has its own browser instance. Workers are created lazily on first
// acquire to avoid startup delay.
type RendererPool struct {
	cfg     PoolConfig
	size    int
	workers []*Worker
	sem     chan *Worker
	mu      sync.Mutex
	created int
	closed  bool
}

// NewRendererPool creates a pool. Workers are created when acquired, not
// at pool creation.
func NewRendererPool(cfg PoolConfig) *RendererPool {
	n := ResolvePoolSize(cfg.Size)
	return &RendererPool{
		cfg:     cfg,
		size:    n,
		workers: make([]*Worker, 0, n),
		sem:     make(chan *Worker, n),
	}
}

// Acquire gets a worker from the pool, creating one if needed.
// Blocks until a worker is released or ctx is done.
func (p *RendererPool) Acquire(ctx context.Context) (*Worker, error) {
	// Try to get an existing worker (non-blocking)
	select {
	case w, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return w, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		// Create new worker outside the lock
		w, err := p.newWorker()
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}

		p.mu.Lock()
		p.workers = append(p.workers, w)
		p.mu.Unlock()

		return w, nil
	}
	p.mu.Unlock()

	// All workers created, wait for one to be released
	select {
	case w, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *RendererPool) newWorker() (*Worker, error) {
	opts := append([]Option(nil), p.cfg.Options...)

	var browser *BrowserEngine
	if p.cfg.Prerender {
		browser = NewBrowserEngine(p.cfg.BrowserOptions...)
		opts = append(opts, WithDiagramEngine(browser.Diagrams()), WithMathEngine(browser.Math()))
	}

	r, err := NewRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pooled renderer: %w", err)
	}
	return &Worker{Renderer: r, browser: browser}, nil
}

// Release returns a worker to the pool.
// The lock is released before sending to avoid deadlock when channel is full.
func (p *RendererPool) Release(w *Worker) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.sem <- w
}

// Close releases all browser resources.
// Returns an aggregated error if multiple workers fail to close.
func (p *RendererPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sem)
	workers := p.workers
	p.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *RendererPool) Size() int {
	return p.size
}

// ResolvePoolSize determines the optimal pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	// Explicit value takes priority
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	available := runtime.GOMAXPROCS(0)
	n := available / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
