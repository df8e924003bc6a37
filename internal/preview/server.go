// Package preview serves a rendered markdown file over HTTP and pushes
// every re-render to open pages through a websocket.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/assets"
)

// Routes served by the preview server.
const (
	RoutePage    = "/"
	RouteSocket  = "/ws"
	RouteStyle   = "/" + mdrender.ThemesStylesheet
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)

const shutdownTimeout = 5 * time.Second

// ErrNoSource is returned when no markdown file is configured.
var ErrNoSource = errors.New("preview: no source file")

// Options configures a Server.
type Options struct {
	// Path is the markdown file to watch.
	Path string

	// Debounce delays re-rendering after a change. Zero selects
	// mdrender.DefaultDebounce.
	Debounce time.Duration

	// PollInterval is how often Path's modification time is checked.
	// Zero keeps the FileSource default.
	PollInterval time.Duration

	// Document shapes the served page. Live is always set.
	Document mdrender.DocumentOptions

	// RendererOptions build the server's renderer.
	RendererOptions []mdrender.Option

	// Assets supplies a custom stylesheet served after the built-in one.
	// Nil serves the built-in stylesheet alone.
	Assets *assets.AssetResolver

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server renders one file into a document page and keeps it current.
type Server struct {
	opts     Options
	logger   *slog.Logger
	renderer *mdrender.Renderer
	hub      *Hub
	page     *mdrender.Page
	router   chi.Router

	mu      sync.Mutex
	head    string
	cancel  func()
	pending *Message
	wake    chan struct{}
	stop    chan struct{}
}

// New builds a server. Nothing is rendered until Start.
func New(opts Options) (*Server, error) {
	if opts.Path == "" {
		return nil, ErrNoSource
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Document.Live = true
	if opts.Document.Title == "" {
		opts.Document.Title = strings.TrimSuffix(filepath.Base(opts.Path), filepath.Ext(opts.Path))
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		hub:    NewHub(opts.Logger),
		wake:   make(chan struct{}, 1),
	}

	rendererOpts := append([]mdrender.Option{mdrender.WithLogger(opts.Logger)}, opts.RendererOptions...)
	rendererOpts = append(rendererOpts, mdrender.WithOnRender(s.onRender))
	r, err := mdrender.NewRenderer(rendererOpts...)
	if err != nil {
		return nil, err
	}
	s.renderer = r

	page, err := mdrender.NewDocumentPage(r.Theme(), opts.Document)
	if err != nil {
		return nil, err
	}
	s.page = page

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(RoutePage, s.handlePage)
	r.Get(RouteStyle, s.handleStyle)
	r.Get(RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(RouteSocket, s.hub)
	if s.opts.Gatherer != nil {
		r.Handle(RouteMetrics, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start renders the file and begins watching it. The initial render's
// error is returned; later failures are logged.
func (s *Server) Start(ctx context.Context) error {
	node, err := s.page.Find("article." + mdrender.ContainerClass)
	if err != nil {
		return err
	}

	src := mdrender.NewFileSource(s.opts.Path)
	if s.opts.PollInterval > 0 {
		src.Interval = s.opts.PollInterval
	}

	cancel, err := s.renderer.RenderLive(ctx, src, s.page, node.First(), s.opts.Debounce)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", s.opts.Path, err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.stop = stop
	s.mu.Unlock()

	go s.pushUpdates(stop)
	return nil
}

// Close stops watching and disconnects every page.
func (s *Server) Close() {
	s.mu.Lock()
	cancel, stop := s.cancel, s.stop
	s.cancel, s.stop = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		close(stop)
	}
	s.hub.Close()
}

// ListenAndServe starts watching, then serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("preview server listening", "addr", ln.Addr().String(), "file", s.opts.Path)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	out, err := s.page.HTML()
	if err != nil {
		s.logger.Error("serializing preview page", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleStyle(w http.ResponseWriter, _ *http.Request) {
	css, err := s.stylesheet()
	if err != nil {
		s.logger.Error("loading stylesheet", "err", err)
		http.Error(w, "stylesheet unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(css))
}

// stylesheet is the built-in stylesheet followed by the custom one.
func (s *Server) stylesheet() (string, error) {
	css, err := assets.LoadStyle(assets.ThemesStyle)
	if err != nil || s.opts.Assets == nil {
		return css, err
	}
	custom, ok, err := s.opts.Assets.CustomStyle(assets.ThemesStyle)
	if err != nil {
		return "", err
	}
	if ok {
		css += "\n" + custom
	}
	return css, nil
}

// onRender runs inside the page update after every render, with the page
// locked, so it only queues the update. A changed head (a new highlight
// style or engine script) needs a reload; otherwise the enhanced body is
// pushed.
func (s *Server) onRender(_ string, el *goquery.Selection) {
	head, _ := el.ParentsFiltered("html").Find("head").First().Html()
	body, err := el.Html()
	if err != nil {
		s.logger.Warn("serializing render", "err", err)
		return
	}

	s.mu.Lock()
	headChanged := s.head != "" && s.head != head
	s.head = head
	s.mu.Unlock()

	if headChanged {
		s.queue(Message{Type: TypeReload})
		return
	}
	s.queue(Message{Type: TypeRender, HTML: body})
}

// queue makes msg the next update to push, replacing any pending one. A
// pending reload is kept, since the reloaded page shows the newer render.
func (s *Server) queue(msg Message) {
	s.mu.Lock()
	if s.pending == nil || s.pending.Type != TypeReload {
		s.pending = &msg
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pushUpdates broadcasts queued updates until stop is closed. Slow pages
// delay only this loop, never a render.
func (s *Server) pushUpdates(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		msg := s.pending
		s.pending = nil
		s.mu.Unlock()

		if msg != nil {
			s.hub.Broadcast(*msg)
		}
	}
}
