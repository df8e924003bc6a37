package assets

import (
	"errors"
	"strings"
	"testing"
)

func TestBuiltinAssets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		load     func(string) (string, error)
		asset    string
		contains string
	}{
		{"themes stylesheet", LoadStyle, ThemesStyle, ".markdown-body"},
		{"themes dark variant", LoadStyle, ThemesStyle, ":host(.dark)"},
		{"copy script", LoadScript, CopyScript, "Copied!"},
		{"live script", LoadScript, LiveScript, "/ws"},
		{"page template", LoadTemplate, PageTemplate, "markdown-body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.load(tt.asset)
			if err != nil {
				t.Fatalf("load(%q) error = %v", tt.asset, err)
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("load(%q) missing %q", tt.asset, tt.contains)
			}
		})
	}
}

func TestCopyScript_Feedback(t *testing.T) {
	t.Parallel()

	js, err := LoadScript(CopyScript)
	if err != nil {
		t.Fatal(err)
	}

	copied := strings.Index(js, "btn.textContent = 'Copied!'")
	write := strings.Index(js, "writeText(")
	if copied < 0 || write < 0 || copied > write {
		t.Error("label should change on click, before the clipboard write settles")
	}
	if !strings.Contains(js, ".catch(failed)") || !strings.Contains(js, "Copy failed") {
		t.Error("a rejected clipboard write should be reported on the button")
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		load    func(string) (string, error)
		wantErr error
	}{
		{"style", LoadStyle, ErrStyleNotFound},
		{"script", LoadScript, ErrScriptNotFound},
		{"template", LoadTemplate, ErrTemplateNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.load("nonexistent-xyz")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAssetName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "themes", false},
		{"hyphenated", "my-style", false},
		{"empty", "", true},
		{"slash", "../etc/passwd", true},
		{"backslash", `a\b`, true},
		{"dot", "themes.css", true},
		{"space", "my style", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateAssetName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAssetName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAssetName) {
				t.Errorf("error = %v, want ErrInvalidAssetName", err)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	t.Parallel()

	if got := MustLoad(LoadScript, CopyScript); got == "" {
		t.Error("MustLoad() returned empty content")
	}

	defer func() {
		if recover() == nil {
			t.Error("MustLoad() did not panic for a missing asset")
		}
	}()
	MustLoad(LoadScript, "nonexistent-xyz")
}
