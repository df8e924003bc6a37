package main

import "testing"

func TestSplitFrontMatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantLang  string
		wantBody  string
	}{
		{
			name:      "title and lang",
			input:     "---\ntitle: Release Notes\nlang: fr\n---\n# Hello\n",
			wantTitle: "Release Notes",
			wantLang:  "fr",
			wantBody:  "# Hello\n",
		},
		{
			name:      "unknown keys ignored",
			input:     "---\ntitle: T\ntags: [a, b]\n---\nbody",
			wantTitle: "T",
			wantBody:  "body",
		},
		{
			name:     "empty block",
			input:    "---\n---\nbody",
			wantBody: "body",
		},
		{
			name:      "CRLF fences",
			input:     "---\r\ntitle: Win\r\n---\r\nbody",
			wantTitle: "Win",
			wantBody:  "body",
		},
		{
			name:     "no front matter",
			input:    "# Title\n\n---\n\ntext",
			wantBody: "# Title\n\n---\n\ntext",
		},
		{
			name:     "unclosed block",
			input:    "---\ntitle: x\nbody",
			wantBody: "---\ntitle: x\nbody",
		},
		{
			name:     "invalid yaml kept as body",
			input:    "---\ntitle: [\n---\nbody",
			wantBody: "---\ntitle: [\n---\nbody",
		},
		{
			name:     "fence only",
			input:    "---",
			wantBody: "---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta, body := splitFrontMatter(tt.input)
			if meta.Title != tt.wantTitle || meta.Lang != tt.wantLang {
				t.Errorf("meta = %+v, want title %q lang %q", meta, tt.wantTitle, tt.wantLang)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}
