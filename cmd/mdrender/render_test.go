package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/output"
)

// fakePool hands out workers around plain renderers.
type fakePool struct {
	t          *testing.T
	size       int
	acquireErr error

	mu       sync.Mutex
	acquired int
}

func (p *fakePool) Acquire(context.Context) (*mdrender.Worker, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return &mdrender.Worker{Renderer: newRenderer(p.t)}, nil
}

func (p *fakePool) Release(*mdrender.Worker) {}

func (p *fakePool) Size() int { return p.size }

// memSink records writes in memory.
type memSink struct {
	failName string

	mu    sync.Mutex
	files map[string]string
}

func (s *memSink) Write(_ context.Context, name string, content []byte) (string, error) {
	if name == s.failName {
		return "", output.ErrWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[name] = string(content)
	return "mem://" + name, nil
}

func newRenderer(t *testing.T) *mdrender.Renderer {
	t.Helper()

	r, err := mdrender.NewRenderer(mdrender.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# A")
	writeFile(t, filepath.Join(dir, "sub", "b.markdown"), "# B")
	writeFile(t, filepath.Join(dir, "sub", "notes.txt"), "skip")

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		root, files, err := discoverFiles(dir, "")
		if err != nil {
			t.Fatalf("discoverFiles() error = %v", err)
		}
		if root != dir {
			t.Errorf("root = %q, want %q", root, dir)
		}

		var names []string
		for _, f := range files {
			names = append(names, f.Name)
		}
		sort.Strings(names)
		want := []string{"a.html", "sub/b.html"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("names = %v, want %v", names, want)
		}
	})

	t.Run("directory with output dir", func(t *testing.T) {
		t.Parallel()

		root, _, err := discoverFiles(dir, "site")
		if err != nil {
			t.Fatalf("discoverFiles() error = %v", err)
		}
		if root != "site" {
			t.Errorf("root = %q, want site", root)
		}
	})

	t.Run("single file", func(t *testing.T) {
		t.Parallel()

		root, files, err := discoverFiles(filepath.Join(dir, "sub", "b.markdown"), "")
		if err != nil {
			t.Fatalf("discoverFiles() error = %v", err)
		}
		if root != filepath.Join(dir, "sub") {
			t.Errorf("root = %q", root)
		}
		if len(files) != 1 || files[0].Name != "b.html" {
			t.Errorf("files = %+v", files)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		t.Parallel()

		_, _, err := discoverFiles(filepath.Join(dir, "sub", "notes.txt"), "")
		if !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("error = %v, want ErrInvalidExtension", err)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		t.Parallel()

		_, _, err := discoverFiles(filepath.Join(dir, "nope.md"), "")
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want os.ErrNotExist", err)
		}
	})
}

func TestValidateWorkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{mdrender.MaxPoolSize, false},
		{mdrender.MaxPoolSize + 1, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := validateWorkers(tt.n)
		if tt.wantErr != (err != nil) {
			t.Errorf("validateWorkers(%d) = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidWorkerCount) {
			t.Errorf("validateWorkers(%d) = %v, want ErrInvalidWorkerCount", tt.n, err)
		}
	}
}

func TestRenderDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		markdown string
		params   renderParams
		want     []string
		reject   []string
		wantErr  error
	}{
		{
			name:     "fragment",
			markdown: "# Hello\n\nSome *text*.",
			params:   renderParams{format: config.FormatFragment},
			want:     []string{"<h1", "Hello", "<em>text</em>"},
			reject:   []string{"<html", "<title>"},
		},
		{
			name:     "standalone takes the first heading as title",
			markdown: "# Hello\n\nBody.",
			params:   renderParams{format: config.FormatStandalone, doc: mdrender.DocumentOptions{Lang: "en"}},
			want:     []string{"<html", `lang="en"`, "<title>Hello</title>", `<link rel="stylesheet" href="themes.css"`, "markdown-body"},
		},
		{
			name:     "front matter sets title and lang",
			markdown: "---\ntitle: Release Notes\nlang: fr\n---\n# Hello\n",
			params:   renderParams{format: config.FormatStandalone, doc: mdrender.DocumentOptions{Lang: "en"}},
			want:     []string{"<title>Release Notes</title>", `lang="fr"`},
			reject:   []string{"title: Release Notes"},
		},
		{
			name:     "configured title wins over front matter",
			markdown: "---\ntitle: Ignored\n---\n# Hello\n",
			params:   renderParams{format: config.FormatStandalone, doc: mdrender.DocumentOptions{Title: "Handbook"}},
			want:     []string{"<title>Handbook</title>"},
		},
		{
			name:     "self-contained inlines the stylesheet",
			markdown: "# Hello",
			params: renderParams{format: config.FormatSelfContained, doc: mdrender.DocumentOptions{
				InlineCSS: true,
				ExtraCSS:  ".custom-rule{color:red}",
			}},
			want:   []string{"<style>", ".markdown-body", ".custom-rule{color:red}"},
			reject: []string{`rel="stylesheet"`},
		},
		{
			name:     "front matter only",
			markdown: "---\ntitle: Empty\n---\n",
			params:   renderParams{format: config.FormatStandalone},
			wantErr:  mdrender.ErrEmptyMarkdown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := renderDocument(context.Background(), newRenderer(t), tt.markdown, &tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("renderDocument() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("renderDocument() error = %v", err)
			}

			html := string(out)
			for _, s := range tt.want {
				if !strings.Contains(html, s) {
					t.Errorf("output missing %q:\n%s", s, html)
				}
			}
			for _, s := range tt.reject {
				if strings.Contains(html, s) {
					t.Errorf("output contains %q:\n%s", s, html)
				}
			}
		})
	}
}

func TestRenderBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var files []FileToRender
	for _, name := range []string{"a", "b", "c", "d"} {
		path := filepath.Join(dir, name+".md")
		writeFile(t, path, "# "+strings.ToUpper(name))
		files = append(files, FileToRender{InputPath: path, Name: name + ".html"})
	}

	t.Run("renders every file", func(t *testing.T) {
		t.Parallel()

		sink := &memSink{}
		pool := &fakePool{t: t, size: 2}
		results := renderBatch(context.Background(), pool, files, &renderParams{
			format: config.FormatFragment,
			sink:   sink,
		})

		if len(results) != len(files) {
			t.Fatalf("got %d results, want %d", len(results), len(files))
		}
		for i, r := range results {
			if r.Err != nil {
				t.Errorf("%s: %v", r.InputPath, r.Err)
			}
			if r.InputPath != files[i].InputPath {
				t.Errorf("result %d is for %s, want %s", i, r.InputPath, files[i].InputPath)
			}
			if r.Location != "mem://"+files[i].Name {
				t.Errorf("Location = %q", r.Location)
			}
		}
		if !strings.Contains(sink.files["c.html"], "<h1") {
			t.Errorf("c.html = %q", sink.files["c.html"])
		}
		if pool.acquired != 2 {
			t.Errorf("acquired %d workers, want 2", pool.acquired)
		}
	})

	t.Run("failures stay per file", func(t *testing.T) {
		t.Parallel()

		missing := append([]FileToRender{{InputPath: filepath.Join(dir, "gone.md"), Name: "gone.html"}}, files...)
		sink := &memSink{failName: "b.html"}
		results := renderBatch(context.Background(), &fakePool{t: t, size: 3}, missing, &renderParams{
			format: config.FormatFragment,
			sink:   sink,
		})

		var failed []string
		for _, r := range results {
			if r.Err != nil {
				failed = append(failed, filepath.Base(r.InputPath))
			}
		}
		sort.Strings(failed)
		if strings.Join(failed, ",") != "b.md,gone.md" {
			t.Errorf("failed = %v, want [b.md gone.md]", failed)
		}
		if !errors.Is(results[0].Err, ErrReadMarkdown) {
			t.Errorf("missing file error = %v, want ErrReadMarkdown", results[0].Err)
		}
	})

	t.Run("acquire failure fails every file", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("no browser")
		results := renderBatch(context.Background(), &fakePool{t: t, size: 2, acquireErr: boom}, files, &renderParams{
			format: config.FormatFragment,
			sink:   &memSink{},
		})
		for _, r := range results {
			if !errors.Is(r.Err, boom) {
				t.Errorf("%s: error = %v, want acquire error", r.InputPath, r.Err)
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results := renderBatch(ctx, &fakePool{t: t, size: 1}, files, &renderParams{
			format: config.FormatFragment,
			sink:   &memSink{},
		})
		for _, r := range results {
			if !errors.Is(r.Err, context.Canceled) {
				t.Errorf("%s: error = %v, want context.Canceled", r.InputPath, r.Err)
			}
		}
	})

	t.Run("no files", func(t *testing.T) {
		t.Parallel()

		if results := renderBatch(context.Background(), &fakePool{t: t, size: 1}, nil, &renderParams{}); results != nil {
			t.Errorf("results = %v, want nil", results)
		}
	})
}

func TestRenderBatch_RelativeLinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "docs", "page.md")
	writeFile(t, src, "![logo](images/logo.png)\n\n[top](#top) [site](https://example.com)\n")
	files := []FileToRender{{InputPath: src, Name: "page.html"}}

	tests := []struct {
		name   string
		root   string
		want   []string
		reject []string
	}{
		{
			name: "output elsewhere points back at the source",
			root: filepath.Join(dir, "site"),
			want: []string{`src="../docs/images/logo.png"`, `href="#top"`, `href="https://example.com"`},
		},
		{
			name:   "output next to the source is untouched",
			root:   filepath.Join(dir, "docs"),
			want:   []string{`src="images/logo.png"`},
			reject: []string{"../docs/"},
		},
		{
			name:   "nothing written locally",
			root:   "",
			want:   []string{`src="images/logo.png"`},
			reject: []string{"../docs/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &memSink{}
			results := renderBatch(context.Background(), &fakePool{t: t, size: 1}, files, &renderParams{
				format: config.FormatFragment,
				sink:   sink,
				root:   tt.root,
			})
			if results[0].Err != nil {
				t.Fatalf("render error = %v", results[0].Err)
			}

			got := sink.files["page.html"]
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("page.html missing %q:\n%s", w, got)
				}
			}
			for _, r := range tt.reject {
				if strings.Contains(got, r) {
					t.Errorf("page.html should not contain %q:\n%s", r, got)
				}
			}
		})
	}
}

func TestLinkPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "docs", "guide", "intro.md")

	tests := []struct {
		name string
		root string
		file FileToRender
		want string
	}{
		{"no local output", "", FileToRender{InputPath: src, Name: "intro.html"}, ""},
		{"same directory", filepath.Join(dir, "docs", "guide"), FileToRender{InputPath: src, Name: "intro.html"}, ""},
		{"sibling output root", filepath.Join(dir, "site"), FileToRender{InputPath: src, Name: "intro.html"}, "../docs/guide/"},
		{"nested output name", filepath.Join(dir, "site"), FileToRender{InputPath: src, Name: "guide/intro.html"}, "../../docs/guide/"},
		{"directory walk layout", filepath.Join(dir, "docs"), FileToRender{InputPath: src, Name: "guide/intro.html"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := linkPrefix(tt.root, tt.file); got != tt.want {
				t.Errorf("linkPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderStdin(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	deps := &Dependencies{Stdin: strings.NewReader("# From stdin"), Stdout: &stdout}

	err := renderStdin(context.Background(), &fakePool{t: t, size: 1}, &renderParams{format: config.FormatFragment}, deps)
	if err != nil {
		t.Fatalf("renderStdin() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "From stdin") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestBuildSink(t *testing.T) {
	t.Parallel()

	t.Run("directory only", func(t *testing.T) {
		t.Parallel()

		sink, err := buildSink("out", config.DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if d, ok := sink.(*output.DirSink); !ok || d.Root != "out" {
			t.Errorf("sink = %#v, want DirSink at out", sink)
		}
	})

	t.Run("bucket only", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Output.S3 = config.S3Config{Bucket: "docs", Region: "eu-west-1"}
		sink, err := buildSink("in", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := sink.(*output.S3Sink); !ok {
			t.Errorf("sink = %T, want *output.S3Sink", sink)
		}
	})

	t.Run("directory and bucket", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Output.Dir = "site"
		cfg.Output.S3 = config.S3Config{Bucket: "docs", Region: "eu-west-1"}
		sink, err := buildSink("site", cfg)
		if err != nil {
			t.Fatal(err)
		}
		multi, ok := sink.(output.Multi)
		if !ok || len(multi) != 2 {
			t.Errorf("sink = %#v, want two sinks", sink)
		}
	})
}

func TestDocumentOptions(t *testing.T) {
	t.Parallel()

	t.Run("custom stylesheet is appended", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "styles", "themes.css"), ".brand{color:teal}")

		cfg := config.DefaultConfig()
		cfg.Output.Format = config.FormatSelfContained
		cfg.Assets.BasePath = dir

		doc, err := documentOptions(cfg)
		if err != nil {
			t.Fatalf("documentOptions() error = %v", err)
		}
		if !doc.InlineCSS || doc.ExtraCSS != ".brand{color:teal}" {
			t.Errorf("doc = %+v", doc)
		}
	})

	t.Run("missing custom stylesheet adds nothing", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Output.Format = config.FormatSelfContained
		cfg.Assets.BasePath = t.TempDir()

		doc, err := documentOptions(cfg)
		if err != nil {
			t.Fatalf("documentOptions() error = %v", err)
		}
		if doc.ExtraCSS != "" {
			t.Errorf("ExtraCSS = %q, want empty", doc.ExtraCSS)
		}
	})

	t.Run("standalone links the stylesheet", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Output.Title = "Guide"
		doc, err := documentOptions(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if doc.InlineCSS || doc.Title != "Guide" || doc.Lang != "en" {
			t.Errorf("doc = %+v", doc)
		}
	})

	t.Run("invalid base path", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Output.Format = config.FormatSelfContained
		cfg.Assets.BasePath = filepath.Join(t.TempDir(), "missing")

		if _, err := documentOptions(cfg); !errors.Is(err, ErrUsage) {
			t.Errorf("error = %v, want ErrUsage", err)
		}
	})
}

func TestPrintResults(t *testing.T) {
	t.Parallel()

	results := []RenderResult{
		{InputPath: "a.md", Location: "out/a.html"},
		{InputPath: "b.md", Err: errors.New("boom")},
	}

	tests := []struct {
		name       string
		quiet      bool
		wantStdout []string
		rejectOut  []string
	}{
		{
			name:       "normal",
			wantStdout: []string{"Created out/a.html", "1 succeeded, 1 failed"},
		},
		{
			name:      "quiet",
			quiet:     true,
			rejectOut: []string{"Created", "succeeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			failed := printResults(results, tt.quiet, false, &Dependencies{Stdout: &stdout, Stderr: &stderr})
			if failed != 1 {
				t.Errorf("failed = %d, want 1", failed)
			}
			if !strings.Contains(stderr.String(), "FAILED b.md: boom") {
				t.Errorf("stderr = %q", stderr.String())
			}
			for _, s := range tt.wantStdout {
				if !strings.Contains(stdout.String(), s) {
					t.Errorf("stdout missing %q: %q", s, stdout.String())
				}
			}
			for _, s := range tt.rejectOut {
				if strings.Contains(stdout.String(), s) {
					t.Errorf("stdout contains %q: %q", s, stdout.String())
				}
			}
		})
	}
}
