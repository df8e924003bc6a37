package assets

import (
	"fmt"
	"strings"
)

// Built-in asset names.
const (
	// ThemesStyle is the stylesheet for .markdown-body in light and dark.
	ThemesStyle = "themes"

	// CopyScript wires copy buttons to the clipboard.
	CopyScript = "copy"

	// LiveScript connects a preview page to the preview server's websocket.
	LiveScript = "live"

	// PageTemplate wraps a rendered fragment in a complete document.
	PageTemplate = "page"
)

// AssetLoader defines the contract for loading styles, scripts and templates.
type AssetLoader interface {
	// LoadStyle loads a CSS style by name (without .css extension).
	LoadStyle(name string) (string, error)

	// LoadScript loads a browser script by name (without .js extension).
	LoadScript(name string) (string, error)

	// LoadTemplate loads an HTML template by name (without .html extension).
	LoadTemplate(name string) (string, error)
}

// assetKind describes where one kind of asset lives.
type assetKind struct {
	dir      string
	ext      string
	notFound error
}

var (
	styleKind    = assetKind{dir: "styles", ext: ".css", notFound: ErrStyleNotFound}
	scriptKind   = assetKind{dir: "scripts", ext: ".js", notFound: ErrScriptNotFound}
	templateKind = assetKind{dir: "templates", ext: ".html", notFound: ErrTemplateNotFound}
)

// ValidateAssetName checks that an asset name is safe for use as a filename.
// Returns ErrInvalidAssetName if the name is empty or contains path separators,
// dots (which could allow extension manipulation), or whitespace.
func ValidateAssetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if strings.ContainsAny(name, "/\\. \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
