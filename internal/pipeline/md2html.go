package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// ErrHTMLConversion indicates HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// DiagramLanguage is the fence info string marking diagram source.
const DiagramLanguage = "mermaid"

// HTMLConverter abstracts Markdown to HTML conversion.
type HTMLConverter interface {
	ToHTML(ctx context.Context, content string) (string, error)
}

// ConverterOption configures a GoldmarkConverter.
type ConverterOption func(*converterConfig)

type converterConfig struct {
	highlightStyle string
	highlight      bool
	math           bool
	extra          []goldmark.Option
}

// WithHighlighting enables chroma highlighting while parsing, with CSS
// classes instead of inline styles. Diagram fences are never highlighted.
func WithHighlighting(style string) ConverterOption {
	return func(c *converterConfig) {
		c.highlight = true
		c.highlightStyle = style
	}
}

// WithMathParsing enables MathExtension.
func WithMathParsing() ConverterOption {
	return func(c *converterConfig) {
		c.math = true
	}
}

// WithGoldmarkOptions appends caller options after the defaults, so they
// can add extensions or override parser and renderer settings.
func WithGoldmarkOptions(opts ...goldmark.Option) ConverterOption {
	return func(c *converterConfig) {
		c.extra = append(c.extra, opts...)
	}
}

// GoldmarkConverter converts Markdown to an HTML fragment using goldmark.
type GoldmarkConverter struct {
	md goldmark.Markdown
}

// NewGoldmarkConverter creates a GoldmarkConverter with GFM, footnotes and
// heading IDs. Raw HTML passes through (the sanitizer runs afterwards), so
// <details> and <summary> written in markdown survive.
func NewGoldmarkConverter(opts ...ConverterOption) *GoldmarkConverter {
	var cfg converterConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	extensions := []goldmark.Extender{
		extension.GFM,      // Tables, strikethrough, autolinks, task lists
		extension.Footnote, // [^1] footnotes
	}
	if cfg.math {
		extensions = append(extensions, MathExtension)
	}
	if cfg.highlight {
		extensions = append(extensions, highlighting.NewHighlighting(
			highlighting.WithStyle(cfg.highlightStyle),
			highlighting.WithFormatOptions(
				chromahtml.WithClasses(true), // CSS classes for smaller HTML and external stylesheet control
			),
			highlighting.WithWrapperRenderer(diagramAwareWrapper),
		))
	}

	gmOpts := []goldmark.Option{
		goldmark.WithExtensions(extensions...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // Generate IDs for headings
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	}
	gmOpts = append(gmOpts, cfg.extra...)

	return &GoldmarkConverter{md: goldmark.New(gmOpts...)}
}

// ToHTML converts Markdown content to an HTML fragment.
// Supports context cancellation via goroutine + select pattern since
// Goldmark doesn't natively support context.
func (c *GoldmarkConverter) ToHTML(ctx context.Context, content string) (string, error) {
	// Fast path: check context before starting
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, r)}
			}
		}()

		var buf bytes.Buffer
		if err := c.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// diagramAwareWrapper writes plain <pre><code class="language-x"> wrappers
// for blocks chroma did not highlight, so diagram fences keep the markup
// the lifecycle diagram pass looks for.
func diagramAwareWrapper(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
	if ctx.Highlighted() {
		return
	}

	if !entering {
		_, _ = w.WriteString("</code></pre>\n")
		return
	}

	lang, _ := ctx.Language()
	lang = bytes.TrimSpace(lang)
	_, _ = w.WriteString("<pre><code")
	if len(lang) > 0 {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML(lang))
		_, _ = w.WriteString(`"`)
	}
	_, _ = w.WriteString(">")
}

// IsDiagramLanguage reports whether a fence language denotes diagram source.
func IsDiagramLanguage(lang string) bool {
	return strings.EqualFold(strings.TrimSpace(lang), DiagramLanguage)
}
