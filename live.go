package mdrender

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDebounce is the quiet period RenderLive waits for after a change.
const DefaultDebounce = 200 * time.Millisecond

// defaultPollInterval is how often FileSource checks its file.
const defaultPollInterval = 250 * time.Millisecond

// Source supplies markdown text.
type Source interface {
	Text() string
}

// InputSource is a Source that announces changes. Subscribe registers fn
// and returns a function removing it.
type InputSource interface {
	Source
	Subscribe(fn func()) (unsubscribe func())
}

// StaticSource is fixed markdown text.
type StaticSource string

// Text implements Source.
func (s StaticSource) Text() string {
	return string(s)
}

// Input is an editable text control. SetValue notifies subscribers.
type Input struct {
	mu        sync.Mutex
	value     string
	listeners map[int]func()
	nextID    int
}

// NewInput creates an Input holding value.
func NewInput(value string) *Input {
	return &Input{value: value, listeners: make(map[int]func())}
}

// Text implements Source.
func (in *Input) Text() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value
}

// SetValue replaces the text and fires a change event.
func (in *Input) SetValue(value string) {
	in.mu.Lock()
	in.value = value
	listeners := make([]func(), 0, len(in.listeners))
	for _, fn := range in.listeners {
		listeners = append(listeners, fn)
	}
	in.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Subscribe implements InputSource.
func (in *Input) Subscribe(fn func()) func() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.listeners == nil {
		in.listeners = make(map[int]func())
	}
	id := in.nextID
	in.nextID++
	in.listeners[id] = fn

	return func() {
		in.mu.Lock()
		delete(in.listeners, id)
		in.mu.Unlock()
	}
}

// Listeners returns the number of subscribers.
func (in *Input) Listeners() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.listeners)
}

// FileSource reads markdown from a file and announces changes to its
// modification time, checked every Interval.
type FileSource struct {
	Path     string
	Interval time.Duration

	mu   sync.Mutex
	last string
}

// NewFileSource creates a FileSource polling path at the default interval.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, Interval: defaultPollInterval}
}

// Text implements Source. A read failure returns the last text read.
func (f *FileSource) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.Path)
	if err == nil {
		f.last = string(b)
	}
	return f.last
}

// Subscribe implements InputSource. Polling runs until unsubscribe.
func (f *FileSource) Subscribe(fn func()) func() {
	interval := f.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)

		lastMod := f.modTime()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if mod := f.modTime(); !mod.Equal(lastMod) {
					lastMod = mod
					fn()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}

func (f *FileSource) modTime() time.Time {
	info, err := os.Stat(f.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// RenderLive renders src into node now and, when src is an InputSource,
// again after every burst of changes, once debounce has passed without a
// new one. A change that leaves the text as last rendered renders nothing.
// A debounce of zero or less selects DefaultDebounce.
//
// The returned cancel function stops listening and drops any pending
// render; once it returns no further render starts. It is safe to call
// more than once.
func (r *Renderer) RenderLive(ctx context.Context, src Source, page *Page, node *goquery.Selection, debounce time.Duration) (cancel func(), err error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, stopCtx := context.WithCancel(ctx)
	b := &liveBinding{
		r:     r,
		ctx:   ctx,
		src:   src,
		page:  page,
		node:  node,
		delay: debounce,
	}

	b.last = src.Text()
	if _, err := r.RenderNode(ctx, b.last, page, node); err != nil {
		stopCtx()
		return nil, err
	}

	if in, ok := src.(InputSource); ok {
		b.unsubscribe = in.Subscribe(b.changed)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			stopCtx()
			b.stop()
		})
	}, nil
}

type liveBinding struct {
	r     *Renderer
	ctx   context.Context
	src   Source
	page  *Page
	node  *goquery.Selection
	delay time.Duration

	mu          sync.Mutex
	timer       *time.Timer
	last        string
	stopped     bool
	unsubscribe func()

	// renderMu is held for the whole of a render.
	renderMu sync.Mutex
}

// changed restarts the debounce timer.
func (b *liveBinding) changed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.fire)
}

func (b *liveBinding) fire() {
	b.renderMu.Lock()
	defer b.renderMu.Unlock()

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	text := b.src.Text()
	if text == b.last {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// A failed render leaves last alone so the next change event retries
	// the same text.
	_, err := b.r.RenderNode(b.ctx, text, b.page, b.node)
	switch {
	case err == nil, errors.Is(err, ErrSuperseded):
		b.setLast(text)
		if err != nil {
			b.r.cfg.logger.Debug("live render dropped", "err", err)
		}
	case errors.Is(err, context.Canceled):
		b.r.cfg.logger.Debug("live render dropped", "err", err)
	default:
		b.r.cfg.logger.Warn("live render failed", "err", err)
	}
}

func (b *liveBinding) setLast(text string) {
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
}

// stop waits out a render under way, then prevents any other.
func (b *liveBinding) stop() {
	b.renderMu.Lock()
	defer b.renderMu.Unlock()

	b.mu.Lock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
	unsubscribe := b.unsubscribe
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
