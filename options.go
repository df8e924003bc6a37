package mdrender

import (
	"log/slog"
	"net/http"

	"github.com/yuin/goldmark"
)

// Option configures a Renderer.
type Option func(*rendererConfig)

// rendererConfig holds construction-time settings. Only the theme changes
// after construction, through Renderer.SetTheme.
type rendererConfig struct {
	theme          Theme
	parserOptions  []goldmark.Option
	diagramConfig  map[string]any
	plugins        []Plugin
	onRender       OnRenderFunc
	mathJaxURL     string
	mermaidURL     string
	sanitize       bool
	logger         *slog.Logger
	llmCleanup     bool
	highlightStyle string
	parseHighlight bool
	mathMode       MathMode
	diagramEngine  DiagramEngine
	mathEngine     MathEngine
	metrics        *Metrics
	httpClient     *http.Client
	inlineScripts  bool
}

func defaultConfig() rendererConfig {
	return rendererConfig{
		theme:      DefaultTheme,
		mathJaxURL: DefaultMathJaxURL,
		mermaidURL: DefaultMermaidURL,
		sanitize:   true,
		mathMode:   MathParse,
	}
}

// WithTheme sets the initial theme.
func WithTheme(theme Theme) Option {
	return func(c *rendererConfig) {
		c.theme = theme
	}
}

// WithParserOptions passes options through to goldmark, after the
// renderer's own defaults.
func WithParserOptions(opts ...goldmark.Option) Option {
	return func(c *rendererConfig) {
		c.parserOptions = append(c.parserOptions, opts...)
	}
}

// WithDiagramConfig replaces the configuration given to the diagram
// engine's initialize call. Without it the engine gets {"theme": ...}.
func WithDiagramConfig(config map[string]any) Option {
	return func(c *rendererConfig) {
		c.diagramConfig = config
	}
}

// WithPlugins registers plugins, set up in order at construction.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *rendererConfig) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithOnRender sets the render-completion callback.
func WithOnRender(fn OnRenderFunc) Option {
	return func(c *rendererConfig) {
		c.onRender = fn
	}
}

// WithMathJaxURL sets the math engine script URL.
func WithMathJaxURL(url string) Option {
	return func(c *rendererConfig) {
		c.mathJaxURL = url
	}
}

// WithMermaidURL sets the diagram engine script URL.
func WithMermaidURL(url string) Option {
	return func(c *rendererConfig) {
		c.mermaidURL = url
	}
}

// WithoutSanitize disables HTML sanitizing. Raw HTML in the markdown,
// including <script>, reaches the output unchanged.
func WithoutSanitize() Option {
	return func(c *rendererConfig) {
		c.sanitize = false
	}
}

// WithLogger sets the logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *rendererConfig) {
		c.logger = logger
	}
}

// WithLLMCleanup enables the preprocessing chain for generative-model
// output: line endings, stray fences, indentation, escapes.
func WithLLMCleanup() Option {
	return func(c *rendererConfig) {
		c.llmCleanup = true
	}
}

// WithHighlightStyle sets the chroma style. Empty selects a per-theme
// default.
func WithHighlightStyle(style string) Option {
	return func(c *rendererConfig) {
		c.highlightStyle = style
	}
}

// WithParseTimeHighlighting highlights code while parsing instead of in
// the lifecycle highlight pass, so RenderToHTML output is already colored.
func WithParseTimeHighlighting() Option {
	return func(c *rendererConfig) {
		c.parseHighlight = true
	}
}

// WithMathMode selects how math delimiters are detected.
func WithMathMode(mode MathMode) Option {
	return func(c *rendererConfig) {
		c.mathMode = mode
	}
}

// WithDiagramEngine replaces the default script-injecting diagram engine.
func WithDiagramEngine(engine DiagramEngine) Option {
	return func(c *rendererConfig) {
		c.diagramEngine = engine
	}
}

// WithMathEngine replaces the default script-injecting math engine.
func WithMathEngine(engine MathEngine) Option {
	return func(c *rendererConfig) {
		c.mathEngine = engine
	}
}

// WithMetrics records renders, pass failures and engine loads.
func WithMetrics(m *Metrics) Option {
	return func(c *rendererConfig) {
		c.metrics = m
	}
}

// WithHTTPClient sets the client the default engines fetch scripts with.
func WithHTTPClient(client *http.Client) Option {
	return func(c *rendererConfig) {
		c.httpClient = client
	}
}

// WithInlineScripts makes the default engines embed script text in the
// page instead of linking the URL, for self-contained output.
func WithInlineScripts() Option {
	return func(c *rendererConfig) {
		c.inlineScripts = true
	}
}
