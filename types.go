package mdrender

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Theme selects the light or dark color scheme.
type Theme string

// Theme constants.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = ThemeLight

// ParseTheme parses a theme name (case-insensitive).
// An empty name yields DefaultTheme.
func ParseTheme(name string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultTheme, nil
	case string(ThemeLight):
		return ThemeLight, nil
	case string(ThemeDark):
		return ThemeDark, nil
	}
	return "", fmt.Errorf("%w: %q (must be %q or %q)", ErrInvalidTheme, name, ThemeLight, ThemeDark)
}

// Validate checks that t is a known theme.
func (t Theme) Validate() error {
	if t != ThemeLight && t != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, string(t))
	}
	return nil
}

// IsDark reports whether t is the dark theme.
func (t Theme) IsDark() bool {
	return t == ThemeDark
}

// MathMode selects how math delimiters are detected.
type MathMode int

const (
	// MathParse tags math while parsing markdown. Escaped dollars and
	// dollars inside code are never treated as math.
	MathParse MathMode = iota

	// MathRegex tags $...$ and $$...$$ by pattern matching the generated
	// HTML. It does not understand nested or escaped dollars.
	MathRegex
)

// String returns the mode name.
func (m MathMode) String() string {
	switch m {
	case MathParse:
		return "parse"
	case MathRegex:
		return "regex"
	}
	return fmt.Sprintf("MathMode(%d)", int(m))
}

// ParseMathMode parses "parse" or "regex". An empty name yields MathParse.
func ParseMathMode(name string) (MathMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "parse":
		return MathParse, nil
	case "regex":
		return MathRegex, nil
	}
	return 0, fmt.Errorf("unknown math mode %q (must be \"parse\" or \"regex\")", name)
}

// Plugin extends a Renderer. Setup runs once, at construction, after
// options are applied. A Setup error aborts construction.
type Plugin interface {
	Name() string
	Setup(r *Renderer) error
}

// RenderResult is the outcome of a render.
type RenderResult struct {
	// HTML is the pipeline output written into the target.
	HTML string

	// Element is the target the HTML was written into.
	// Nil for renders that do not touch a page.
	Element *goquery.Selection
}

// OnRenderFunc is called after every successful render into a page.
// It runs while the page is locked: it may read and modify el but must not
// call Page methods.
type OnRenderFunc func(html string, el *goquery.Selection)
