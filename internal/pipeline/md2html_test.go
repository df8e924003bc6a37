package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

func TestGoldmarkConverter_ToHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []string
		wantNot []string
	}{
		{
			name:    "heading with id, no document wrapper",
			input:   "# Hello World",
			want:    []string{`<h1 id="hello-world">Hello World</h1>`},
			wantNot: []string{"<!DOCTYPE", "<body>"},
		},
		{
			name:  "GFM table",
			input: "| A | B |\n|---|---|\n| 1 | 2 |",
			want:  []string{"<table>", "<th>A</th>", "<td>2</td>"},
		},
		{
			name:  "GFM strikethrough",
			input: "~~deleted~~",
			want:  []string{"<del>deleted</del>"},
		},
		{
			name:  "GFM task list",
			input: "- [x] Done\n- [ ] Todo",
			want:  []string{`type="checkbox"`, "checked"},
		},
		{
			name:  "footnote",
			input: "Text[^1]\n\n[^1]: Note",
			want:  []string{"footnote"},
		},
		{
			name:  "fenced code keeps language class",
			input: "```go\nfmt.Println(1)\n```",
			want:  []string{`<pre><code class="language-go">`},
		},
		{
			name:  "diagram fence keeps language class",
			input: "```mermaid\ngraph TD;A-->B\n```",
			want:  []string{`<code class="language-mermaid">graph TD;A--&gt;B`},
		},
		{
			name:  "details block passes through",
			input: "<details>\n<summary>More</summary>\n\nHidden body\n\n</details>",
			want:  []string{"<details>", "<summary>More</summary>", "<p>Hidden body</p>"},
		},
		{
			name:  "soft line breaks are not hard",
			input: "Line one\nLine two",
			want:  []string{"Line one\nLine two"},
		},
		{
			name:    "dollars untouched without math parsing",
			input:   "$x$",
			want:    []string{"<p>$x$</p>"},
			wantNot: []string{`class="math"`},
		},
	}

	conv := NewGoldmarkConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := conv.ToHTML(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("ToHTML() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("ToHTML(%q) = %q, want to contain %q", tt.input, got, want)
				}
			}
			for _, not := range tt.wantNot {
				if strings.Contains(got, not) {
					t.Errorf("ToHTML(%q) = %q, should not contain %q", tt.input, got, not)
				}
			}
		})
	}
}

func TestGoldmarkConverter_Highlighting(t *testing.T) {
	t.Parallel()

	conv := NewGoldmarkConverter(WithHighlighting("github"))

	got, err := conv.ToHTML(context.Background(), "```go\npackage main\n```")
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if !strings.Contains(got, "chroma") {
		t.Errorf("highlighted output should carry chroma classes, got %q", got)
	}
	if strings.Contains(got, "style=") {
		t.Errorf("highlighted output should use classes, not inline styles, got %q", got)
	}
}

func TestGoldmarkConverter_GoldmarkOptions(t *testing.T) {
	t.Parallel()

	conv := NewGoldmarkConverter(WithGoldmarkOptions(
		goldmark.WithRendererOptions(html.WithHardWraps()),
	))

	got, err := conv.ToHTML(context.Background(), "a\nb")
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if !strings.Contains(got, "<br") {
		t.Errorf("caller renderer options should apply, got %q", got)
	}
}

func TestGoldmarkConverter_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGoldmarkConverter().ToHTML(ctx, "# Title")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ToHTML() error = %v, want context.Canceled", err)
	}
}

func TestIsDiagramLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang string
		want bool
	}{
		{"mermaid", true},
		{" Mermaid ", true},
		{"go", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			t.Parallel()

			if got := IsDiagramLanguage(tt.lang); got != tt.want {
				t.Errorf("IsDiagramLanguage(%q) = %v, want %v", tt.lang, got, tt.want)
			}
		})
	}
}
