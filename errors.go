package mdrender

import (
	"errors"

	"github.com/alnah/go-mdrender/internal/pipeline"
)

// Sentinel errors for library operations.
var (
	ErrEmptyMarkdown   = errors.New("markdown content cannot be empty")
	ErrHTMLConversion  = pipeline.ErrHTMLConversion
	ErrTargetNotFound  = errors.New("render target not found")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrSuperseded      = errors.New("render superseded by a newer render")

	// Capability errors.
	ErrScriptLoad  = errors.New("failed to load script")
	ErrEngineInit  = errors.New("engine initialization failed")
	ErrEngineCall  = errors.New("engine call failed")
	ErrPassFailed  = errors.New("enhancement pass failed")
	ErrPageInvalid = errors.New("invalid page markup")

	// Browser errors.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
)
