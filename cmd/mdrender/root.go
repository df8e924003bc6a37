package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/config"
)

// Sentinel errors for command-line usage.
var (
	ErrUsage        = errors.New("invalid usage")
	ErrUnknownStyle = errors.New("unknown highlight style")
)

// app holds state shared by every command.
type app struct {
	deps    *Dependencies
	config  string
	verbose bool
	quiet   bool
	env     *envConfig
	logger  *slog.Logger
}

func newRootCmd(deps *Dependencies) (*cobra.Command, *app) {
	a := &app{deps: deps, env: loadEnvConfig()}

	root := &cobra.Command{
		Use:   "mdrender",
		Short: "Render markdown to enhanced HTML",
		Long: `mdrender renders markdown to HTML with highlighted code, copy buttons,
mermaid diagrams and TeX math, as fragments or complete pages.

Configuration precedence: flags > MDRENDER_* env vars > config file > defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.setup()
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.config, "config", "c", "", "Config file name or path")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Only print errors")

	root.AddCommand(
		renderCmd(a),
		serveCmd(a),
		doctorCmd(a),
		configCmd(a),
		versionCmd(a),
	)
	return root, a
}

// setup configures GOMAXPROCS and the logger once flags are parsed.
func (a *app) setup() {
	level := slog.LevelWarn
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}
	a.logger = slog.New(slog.NewTextHandler(a.deps.Stderr, &slog.HandlerOptions{Level: level}))

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	if a.verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			fmt.Fprintf(a.deps.Stderr, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	}
}

// configName is the config requested by flag or MDRENDER_CONFIG.
func (a *app) configName() string {
	if a.config != "" {
		return a.config
	}
	if a.env != nil {
		return a.env.ConfigPath
	}
	return ""
}

// loadConfig layers the config file and environment over the defaults.
// Flags are applied by each command.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if name := a.configName(); name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyEnvConfig(a.env, cfg)
	return cfg, nil
}

// rendererOptions translates the render config into renderer options.
func rendererOptions(cfg *config.Config, logger *slog.Logger) ([]mdrender.Option, error) {
	theme, err := mdrender.ParseTheme(cfg.Render.Theme)
	if err != nil {
		return nil, err
	}
	mode, err := mdrender.ParseMathMode(cfg.Render.MathMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if style := cfg.Render.HighlightStyle; style != "" {
		if _, ok := styles.Registry[strings.ToLower(style)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, style)
		}
	}

	opts := []mdrender.Option{
		mdrender.WithLogger(logger),
		mdrender.WithTheme(theme),
		mdrender.WithMathMode(mode),
	}
	if cfg.Render.HighlightStyle != "" {
		opts = append(opts, mdrender.WithHighlightStyle(cfg.Render.HighlightStyle))
	}
	if cfg.Render.ParseHighlight {
		opts = append(opts, mdrender.WithParseTimeHighlighting())
	}
	if !cfg.Render.SanitizeEnabled() {
		opts = append(opts, mdrender.WithoutSanitize())
	}
	if cfg.Render.LLMCleanup {
		opts = append(opts, mdrender.WithLLMCleanup())
	}
	if cfg.Render.MermaidURL != "" {
		opts = append(opts, mdrender.WithMermaidURL(cfg.Render.MermaidURL))
	}
	if cfg.Render.MathJaxURL != "" {
		opts = append(opts, mdrender.WithMathJaxURL(cfg.Render.MathJaxURL))
	}
	if len(cfg.Render.Diagram) > 0 {
		opts = append(opts, mdrender.WithDiagramConfig(cfg.Render.Diagram))
	}
	if cfg.Output.Format == config.FormatSelfContained {
		opts = append(opts, mdrender.WithInlineScripts())
	}
	return opts, nil
}

// highlightStyles lists the registered chroma style names, sorted.
func highlightStyles() []string {
	names := make([]string, 0, len(styles.Registry))
	for name := range styles.Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderFlags are the rendering flags shared by render and serve.
type renderFlags struct {
	theme          string
	mathMode       string
	highlightStyle string
	parseHighlight bool
	noSanitize     bool
	llmCleanup     bool
	mermaidURL     string
	mathJaxURL     string
}

func (f *renderFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.theme, "theme", "t", "", "Theme: light, dark")
	fs.StringVar(&f.mathMode, "math-mode", "", "Math detection: parse, regex")
	fs.StringVar(&f.highlightStyle, "highlight-style", "", "Chroma style name (default depends on theme)")
	fs.BoolVar(&f.parseHighlight, "parse-highlight", false, "Highlight code while parsing")
	fs.BoolVar(&f.noSanitize, "no-sanitize", false, "Keep raw HTML from the markdown")
	fs.BoolVar(&f.llmCleanup, "llm-cleanup", false, "Clean up model-generated markdown first")
	fs.StringVar(&f.mermaidURL, "mermaid-url", "", "Diagram engine script URL")
	fs.StringVar(&f.mathJaxURL, "mathjax-url", "", "Math engine script URL")
}

// apply copies the flags the user set onto cfg.
func (f *renderFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("theme") {
		cfg.Render.Theme = f.theme
	}
	if fs.Changed("math-mode") {
		cfg.Render.MathMode = f.mathMode
	}
	if fs.Changed("highlight-style") {
		cfg.Render.HighlightStyle = f.highlightStyle
	}
	if fs.Changed("parse-highlight") {
		cfg.Render.ParseHighlight = f.parseHighlight
	}
	if fs.Changed("no-sanitize") {
		sanitize := !f.noSanitize
		cfg.Render.Sanitize = &sanitize
	}
	if fs.Changed("llm-cleanup") {
		cfg.Render.LLMCleanup = f.llmCleanup
	}
	if fs.Changed("mermaid-url") {
		cfg.Render.MermaidURL = f.mermaidURL
	}
	if fs.Changed("mathjax-url") {
		cfg.Render.MathJaxURL = f.mathJaxURL
	}
}
