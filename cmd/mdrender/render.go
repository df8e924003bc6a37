package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/assets"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/fileutil"
	"github.com/alnah/go-mdrender/internal/output"
	"github.com/alnah/go-mdrender/internal/pipeline"
)

// Sentinel errors for render operations.
var (
	ErrNoInput            = errors.New("no input specified")
	ErrReadMarkdown       = errors.New("failed to read markdown file")
	ErrInvalidExtension   = errors.New("file must have .md or .markdown extension")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrRenderFailed       = errors.New("some documents failed to render")
)

// stdinName selects standard input and output.
const stdinName = "-"

// FileToRender is one markdown file and its output name relative to the
// output root.
type FileToRender struct {
	InputPath string
	Name      string
}

// RenderResult holds the outcome of a single render.
type RenderResult struct {
	InputPath string
	Location  string
	Err       error
	Duration  time.Duration
}

// workerPool abstracts the renderer pool for testability.
type workerPool interface {
	Acquire(ctx context.Context) (*mdrender.Worker, error)
	Release(w *mdrender.Worker)
	Size() int
}

// renderParams is everything a single document render needs besides its
// worker.
type renderParams struct {
	format  string
	doc     mdrender.DocumentOptions
	timeout time.Duration
	sink    output.Sink
	root    string // local output root, empty when nothing is written to disk
}

type renderCmdFlags struct {
	renderFlags
	output    string
	format    string
	title     string
	lang      string
	workers   int
	prerender bool
	timeout   time.Duration
	s3Bucket  string
	s3Prefix  string
	s3Region  string
}

func renderCmd(a *app) *cobra.Command {
	f := &renderCmdFlags{}

	cmd := &cobra.Command{
		Use:   "render [input...]",
		Short: "Render markdown files to HTML",
		Long: `Render markdown files or directories to HTML.

Each input is a .md/.markdown file or a directory searched recursively.
Use "-" to read standard input and write standard output.

Examples:
  mdrender render README.md
  mdrender render docs/ -o site --format self-contained
  mdrender render notes.md --prerender --theme dark
  cat notes.md | mdrender render - --format fragment`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, a, f, args)
		},
	}

	flags := cmd.Flags()
	f.register(flags)
	flags.StringVarP(&f.output, "output", "o", "", "Output directory (default: next to each input)")
	flags.StringVarP(&f.format, "format", "f", "", "Output format: fragment, standalone, self-contained")
	flags.StringVar(&f.title, "title", "", "Document title (default: front matter, then first heading)")
	flags.StringVar(&f.lang, "lang", "", "Document language")
	flags.IntVarP(&f.workers, "workers", "w", 0, "Parallel workers (0 = auto)")
	flags.BoolVar(&f.prerender, "prerender", false, "Render diagrams and math to SVG in headless Chrome")
	flags.DurationVar(&f.timeout, "timeout", 0, "Per-document timeout (e.g. 30s)")
	flags.StringVar(&f.s3Bucket, "s3-bucket", "", "Upload to this S3 bucket")
	flags.StringVar(&f.s3Prefix, "s3-prefix", "", "S3 key prefix")
	flags.StringVar(&f.s3Region, "s3-region", "", "S3 region")

	return cmd
}

// apply copies the flags the user set onto cfg.
func (f *renderCmdFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	f.renderFlags.apply(flags, cfg)

	if flags.Changed("output") {
		cfg.Output.Dir = f.output
	}
	if flags.Changed("format") {
		cfg.Output.Format = f.format
	}
	if flags.Changed("title") {
		cfg.Output.Title = f.title
	}
	if flags.Changed("lang") {
		cfg.Output.Lang = f.lang
	}
	if flags.Changed("workers") {
		cfg.Browser.Workers = f.workers
	}
	if flags.Changed("prerender") {
		cfg.Browser.Prerender = f.prerender
	}
	if flags.Changed("timeout") {
		cfg.Browser.Timeout = f.timeout
	}
	if flags.Changed("s3-bucket") {
		cfg.Output.S3.Bucket = f.s3Bucket
	}
	if flags.Changed("s3-prefix") {
		cfg.Output.S3.Prefix = f.s3Prefix
	}
	if flags.Changed("s3-region") {
		cfg.Output.S3.Region = f.s3Region
	}
}

func runRender(cmd *cobra.Command, a *app, f *renderCmdFlags, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: pass a markdown file, a directory, or \"-\"", ErrNoInput)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validateWorkers(cfg.Browser.Workers); err != nil {
		return err
	}

	opts, err := rendererOptions(cfg, a.logger)
	if err != nil {
		return err
	}
	doc, err := documentOptions(cfg)
	if err != nil {
		return err
	}

	pool := mdrender.NewRendererPool(mdrender.PoolConfig{
		Size:      cfg.Browser.Workers,
		Prerender: cfg.Browser.Prerender,
		Options:   opts,
		BrowserOptions: []mdrender.BrowserOption{
			mdrender.WithBrowserTimeout(cfg.Browser.Timeout),
			mdrender.WithBrowserScripts(cfg.Render.MermaidURL, cfg.Render.MathJaxURL),
			mdrender.WithBrowserLogger(a.logger),
		},
	})
	defer func() {
		if err := pool.Close(); err != nil {
			a.logger.Warn("closing renderer pool", "err", err)
		}
	}()
	a.logger.Debug("renderer pool ready", "size", pool.Size(), "prerender", cfg.Browser.Prerender)

	params := &renderParams{
		format:  cfg.Output.Format,
		doc:     doc,
		timeout: cfg.Browser.Timeout,
	}

	ctx := cmd.Context()
	if len(args) == 1 && args[0] == stdinName {
		return renderStdin(ctx, pool, params, a.deps)
	}

	var failed int
	for _, input := range args {
		root, files, err := discoverFiles(input, cfg.Output.Dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(a.deps.Stderr, "warning: no markdown files in %s\n", input)
			continue
		}

		params.sink, err = buildSink(root, cfg)
		if err != nil {
			return err
		}
		params.root = ""
		if writesLocally(cfg) {
			params.root = root
		}
		results := renderBatch(ctx, pool, files, params)
		failed += printResults(results, a.quiet, a.verbose, a.deps)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d failed", ErrRenderFailed, failed)
	}
	return nil
}

// documentOptions builds page options from the output config, with the
// stylesheet loaded through the asset resolver when a custom path is set.
func documentOptions(cfg *config.Config) (mdrender.DocumentOptions, error) {
	doc := mdrender.DocumentOptions{
		Title:     cfg.Output.Title,
		Lang:      cfg.Output.Lang,
		InlineCSS: cfg.Output.Format == config.FormatSelfContained,
	}
	if cfg.Assets.BasePath == "" || !doc.InlineCSS {
		return doc, nil
	}

	resolver, err := assets.NewAssetResolver(cfg.Assets.BasePath)
	if err != nil {
		return doc, fmt.Errorf("%w: assets: %v", ErrUsage, err)
	}
	css, ok, err := resolver.CustomStyle(assets.ThemesStyle)
	if err != nil {
		return doc, fmt.Errorf("loading stylesheet: %w", err)
	}
	if ok {
		doc.ExtraCSS = css
	}
	return doc, nil
}

// buildSink returns the destinations for one input: the output directory
// unless only S3 was asked for, then S3 when a bucket is set.
func buildSink(root string, cfg *config.Config) (output.Sink, error) {
	var sinks output.Multi
	if writesLocally(cfg) {
		sinks = append(sinks, output.NewDirSink(root))
	}
	if cfg.Output.S3.Bucket != "" {
		client := output.NewS3Client(cfg.Output.S3)
		sinks = append(sinks, output.NewS3Sink(client, cfg.Output.S3.Bucket, cfg.Output.S3.Prefix))
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// writesLocally reports whether pages go to disk: always, unless only an
// S3 bucket was configured.
func writesLocally(cfg *config.Config) bool {
	return cfg.Output.S3.Bucket == "" || cfg.Output.Dir != ""
}

// renderStdin renders standard input to standard output.
func renderStdin(ctx context.Context, pool workerPool, params *renderParams, deps *Dependencies) error {
	content, err := io.ReadAll(deps.Stdin)
	if err != nil {
		return fmt.Errorf("%w: stdin: %v", ErrReadMarkdown, err)
	}

	w, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pool.Release(w)

	out, err := renderDocument(ctx, w.Renderer, string(content), params)
	if err != nil {
		return err
	}
	_, err = deps.Stdout.Write(out)
	return err
}

// renderBatch processes files concurrently using the worker pool.
func renderBatch(ctx context.Context, pool workerPool, files []FileToRender, params *renderParams) []RenderResult {
	if len(files) == 0 {
		return nil
	}

	concurrency := pool.Size()
	if concurrency > len(files) {
		concurrency = len(files)
	}

	results := make([]RenderResult, len(files))
	var wg sync.WaitGroup
	jobs := make(chan int, len(files))

	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			w, err := pool.Acquire(ctx)
			if err != nil {
				// Worker creation failed, mark remaining jobs as failed
				for idx := range jobs {
					results[idx] = RenderResult{InputPath: files[idx].InputPath, Err: err}
				}
				return
			}
			defer pool.Release(w)

			for idx := range jobs {
				if ctx.Err() != nil {
					results[idx] = RenderResult{InputPath: files[idx].InputPath, Err: ctx.Err()}
					continue
				}
				results[idx] = renderFile(ctx, w.Renderer, files[idx], params)
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}

// renderFile renders a single file and writes it to the sink.
func renderFile(ctx context.Context, r *mdrender.Renderer, f FileToRender, params *renderParams) RenderResult {
	start := time.Now()
	result := RenderResult{InputPath: f.InputPath}

	content, err := os.ReadFile(f.InputPath) // #nosec G304 -- discovered path
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrReadMarkdown, err)
		result.Duration = time.Since(start)
		return result
	}

	out, err := renderDocument(ctx, r, string(content), params)
	if err == nil {
		out, err = rewriteLinks(out, linkPrefix(params.root, f))
	}
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	result.Location, result.Err = params.sink.Write(ctx, f.Name, out)
	result.Duration = time.Since(start)
	return result
}

// linkPrefix returns the slash path from the page's output directory back
// to its source directory, with a trailing slash. It is empty when the page
// sits next to its source or is not written to disk.
func linkPrefix(root string, f FileToRender) string {
	if root == "" {
		return ""
	}
	outDir, err := filepath.Abs(filepath.Dir(filepath.Join(root, filepath.FromSlash(f.Name))))
	if err != nil {
		return ""
	}
	srcDir, err := filepath.Abs(filepath.Dir(f.InputPath))
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(outDir, srcDir)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel) + "/"
}

// rewriteLinks points relative image and link references at the source
// directory through prefix. An empty prefix leaves out unchanged.
func rewriteLinks(out []byte, prefix string) ([]byte, error) {
	if prefix == "" {
		return out, nil
	}
	rewritten, err := pipeline.RewriteRelativeLinks(string(out), prefix)
	if err != nil {
		return nil, fmt.Errorf("rewriting relative links: %w", err)
	}
	return []byte(rewritten), nil
}

// renderDocument renders markdown in the configured format. Front matter
// fills an empty title and overrides the language.
func renderDocument(ctx context.Context, r *mdrender.Renderer, markdown string, params *renderParams) ([]byte, error) {
	if params.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.timeout)
		defer cancel()
	}

	meta, body := splitFrontMatter(markdown)
	if strings.TrimSpace(body) == "" {
		return nil, mdrender.ErrEmptyMarkdown
	}

	if params.format == config.FormatFragment {
		out, err := r.RenderToHTML(ctx, body)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}

	doc := params.doc
	if doc.Title == "" {
		doc.Title = meta.Title
	}
	if meta.Lang != "" {
		doc.Lang = meta.Lang
	}

	page, err := r.RenderDocument(ctx, body, doc)
	if err != nil {
		return nil, err
	}
	out, err := page.HTML()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// discoverFiles finds the markdown files under input and returns the
// output root with each file's name relative to it.
func discoverFiles(input, outputDir string) (string, []FileToRender, error) {
	info, err := os.Stat(input)
	if err != nil {
		return "", nil, err
	}

	if !info.IsDir() {
		if err := validateMarkdownExtension(input); err != nil {
			return "", nil, err
		}
		root := outputDir
		if root == "" {
			root = filepath.Dir(input)
		}
		name := fileutil.ReplaceExt(filepath.Base(input), ".html")
		return root, []FileToRender{{InputPath: input, Name: name}}, nil
	}

	root := outputDir
	if root == "" {
		root = input
	}

	var files []FileToRender
	err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		if d.IsDir() || !isMarkdown(path) {
			return nil
		}
		rel, err := filepath.Rel(input, path)
		if err != nil {
			return err
		}
		files = append(files, FileToRender{
			InputPath: path,
			Name:      filepath.ToSlash(fileutil.ReplaceExt(rel, ".html")),
		})
		return nil
	})

	return root, files, err
}

func isMarkdown(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".md" || ext == ".markdown"
}

// validateMarkdownExtension checks that the file has a .md or .markdown extension.
func validateMarkdownExtension(path string) error {
	if !isMarkdown(path) {
		return fmt.Errorf("%w: got %q", ErrInvalidExtension, filepath.Ext(path))
	}
	return nil
}

// validateWorkers checks that the worker count is within valid bounds.
func validateWorkers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d (must be >= 0, 0 means auto)", ErrInvalidWorkerCount, n)
	}
	if n > mdrender.MaxPoolSize {
		return fmt.Errorf("%w: %d (maximum is %d)", ErrInvalidWorkerCount, n, mdrender.MaxPoolSize)
	}
	return nil
}

// printResults outputs render results and returns the failure count.
func printResults(results []RenderResult, quiet, verbose bool, deps *Dependencies) int {
	var succeeded, failed int

	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(deps.Stderr, "FAILED %s: %v\n", r.InputPath, r.Err)
			continue
		}
		succeeded++

		if quiet {
			continue
		}
		if verbose {
			fmt.Fprintf(deps.Stdout, "%s -> %s (%v)\n", r.InputPath, r.Location, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(deps.Stdout, "Created %s\n", r.Location)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(deps.Stdout, "\n%d succeeded, %d failed\n", succeeded, failed)
	}
	return failed
}
