package main

import (
	"errors"
	"os"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/output"
	"github.com/alnah/go-mdrender/internal/preview"
)

// Exit codes for the mdrender CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful render
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, upload failed
	ExitBrowser = 4 // Browser, engine or script errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser and engine errors (exit 4)
	if errors.Is(err, mdrender.ErrBrowserConnect) ||
		errors.Is(err, mdrender.ErrPageCreate) ||
		errors.Is(err, mdrender.ErrPageLoad) ||
		errors.Is(err, mdrender.ErrScriptLoad) ||
		errors.Is(err, mdrender.ErrEngineInit) ||
		errors.Is(err, mdrender.ErrEngineCall) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadMarkdown) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, output.ErrWrite) ||
		errors.Is(err, output.ErrUpload) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, mdrender.ErrEmptyMarkdown) ||
		errors.Is(err, mdrender.ErrInvalidTheme) ||
		errors.Is(err, mdrender.ErrInvalidSelector) ||
		errors.Is(err, output.ErrInvalidName) ||
		errors.Is(err, preview.ErrNoSource) ||
		errors.Is(err, ErrInvalidExtension) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrConfigExists) ||
		errors.Is(err, ErrUnknownStyle) ||
		errors.Is(err, ErrUsage) {
		return ExitUsage
	}

	return ExitGeneral
}
