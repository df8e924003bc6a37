package main

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/assets"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/preview"
)

type serveCmdFlags struct {
	renderFlags
	addr     string
	debounce time.Duration
	poll     time.Duration
	title    string
}

func serveCmd(a *app) *cobra.Command {
	f := &serveCmdFlags{}

	cmd := &cobra.Command{
		Use:   "serve <file.md>",
		Short: "Preview a markdown file with live reload",
		Long: `Serve a markdown file as a page that re-renders on every save.

Open pages receive each render over a websocket. Prometheus metrics are
served at /metrics.

Examples:
  mdrender serve README.md
  mdrender serve notes.md --addr :9000 --theme dark`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a, f, args[0])
		},
	}

	flags := cmd.Flags()
	f.register(flags)
	flags.StringVar(&f.addr, "addr", "", "Listen address (default "+config.DefaultAddr+")")
	flags.DurationVar(&f.debounce, "debounce", 0, "Delay before re-rendering a change")
	flags.DurationVar(&f.poll, "poll", 0, "How often the file is checked for changes")
	flags.StringVar(&f.title, "title", "", "Page title (default: file name)")

	return cmd
}

func (f *serveCmdFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	f.renderFlags.apply(flags, cfg)

	if flags.Changed("addr") {
		cfg.Serve.Addr = f.addr
	}
	if flags.Changed("debounce") {
		cfg.Serve.Debounce = f.debounce
	}
	if flags.Changed("title") {
		cfg.Output.Title = f.title
	}
}

func runServe(cmd *cobra.Command, a *app, f *serveCmdFlags, path string) error {
	if err := validateMarkdownExtension(path); err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := rendererOptions(cfg, a.logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts = append(opts, mdrender.WithMetrics(mdrender.NewMetrics(reg)))

	resolver, err := assets.NewAssetResolver(cfg.Assets.BasePath)
	if err != nil {
		return fmt.Errorf("%w: assets: %v", ErrUsage, err)
	}

	doc := mdrender.DocumentOptions{
		Title: cfg.Output.Title,
		Lang:  cfg.Output.Lang,
	}
	srv, err := preview.New(preview.Options{
		Path:            path,
		Debounce:        cfg.Serve.Debounce,
		PollInterval:    f.poll,
		Document:        doc,
		RendererOptions: opts,
		Assets:          resolver,
		Gatherer:        reg,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Serve.Addr)
	if err != nil {
		return err
	}
	if !a.quiet {
		fmt.Fprintf(a.deps.Stdout, "Serving %s at http://%s (Ctrl+C to stop)\n", path, ln.Addr())
	}
	return srv.Serve(cmd.Context(), ln)
}
