package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mdrender/internal/fileutil"
	"github.com/alnah/go-mdrender/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// AppDir is the directory under the user config dir searched for configs.
const AppDir = "go-mdrender"

// Field length limits.
const (
	MaxURLLength    = 2048 // Browser limit
	MaxStyleLength  = 64   // chroma style names
	MaxTitleLength  = 200  // Document title
	MaxLangLength   = 35   // BCP 47 tag
	MaxBucketLength = 63   // S3 bucket names
	MaxPrefixLength = 1024 // S3 key prefix
	MaxAddrLength   = 255  // host:port
)

// Output formats.
const (
	FormatFragment      = "fragment"
	FormatStandalone    = "standalone"
	FormatSelfContained = "self-contained"
)

// Defaults applied by DefaultConfig.
const (
	DefaultAddr     = "127.0.0.1:8080"
	DefaultDebounce = 200 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// Config holds all configuration for the mdrender command.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Output  OutputConfig  `yaml:"output"`
	Browser BrowserConfig `yaml:"browser"`
	Serve   ServeConfig   `yaml:"serve"`
	Assets  AssetsConfig  `yaml:"assets"`
}

// RenderConfig defines renderer options.
type RenderConfig struct {
	Theme          string         `yaml:"theme"`          // "light" (default) or "dark"
	MathMode       string         `yaml:"mathMode"`       // "parse" (default) or "regex"
	HighlightStyle string         `yaml:"highlightStyle"` // chroma style, empty = theme default
	ParseHighlight bool           `yaml:"parseHighlight"` // highlight while parsing
	Sanitize       *bool          `yaml:"sanitize"`       // nil = true
	LLMCleanup     bool           `yaml:"llmCleanup"`     // clean model output first
	MermaidURL     string         `yaml:"mermaidURL"`     // empty = library default
	MathJaxURL     string         `yaml:"mathJaxURL"`     // empty = library default
	Diagram        map[string]any `yaml:"diagram"`        // passed to mermaid.initialize
}

// SanitizeEnabled reports whether sanitizing is on, which it is unless
// explicitly disabled.
func (r RenderConfig) SanitizeEnabled() bool {
	return r.Sanitize == nil || *r.Sanitize
}

// OutputConfig defines where and how documents are written.
type OutputConfig struct {
	Dir    string   `yaml:"dir"`    // Empty = next to the source
	Format string   `yaml:"format"` // fragment, standalone (default), self-contained
	Title  string   `yaml:"title"`  // Empty = first heading
	Lang   string   `yaml:"lang"`   // Default "en"
	S3     S3Config `yaml:"s3"`
}

// S3Config defines an S3 destination. Empty Bucket disables it.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`  // S3-compatible services
	PathStyle bool   `yaml:"pathStyle"` // Required by most S3-compatible services
}

// BrowserConfig defines headless prerendering.
type BrowserConfig struct {
	Prerender bool          `yaml:"prerender"` // Render diagrams and math to SVG
	Timeout   time.Duration `yaml:"timeout"`   // Per engine call
	Workers   int           `yaml:"workers"`   // 0 = auto
}

// ServeConfig defines the preview server.
type ServeConfig struct {
	Addr     string        `yaml:"addr"`
	Debounce time.Duration `yaml:"debounce"`
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = use embedded assets
}

// Validate checks enum values, URLs and field lengths.
// Called automatically by LoadConfig, but available for consumers
// who construct Config manually.
func (c *Config) Validate() error {
	if err := validateEnum("render.theme", c.Render.Theme, "light", "dark"); err != nil {
		return err
	}
	if err := validateEnum("render.mathMode", c.Render.MathMode, "parse", "regex"); err != nil {
		return err
	}
	if err := validateFieldLength("render.highlightStyle", c.Render.HighlightStyle, MaxStyleLength); err != nil {
		return err
	}
	if err := validateURL("render.mermaidURL", c.Render.MermaidURL); err != nil {
		return err
	}
	if err := validateURL("render.mathJaxURL", c.Render.MathJaxURL); err != nil {
		return err
	}

	if err := validateEnum("output.format", c.Output.Format, FormatFragment, FormatStandalone, FormatSelfContained); err != nil {
		return err
	}
	if err := validateFieldLength("output.title", c.Output.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := validateFieldLength("output.lang", c.Output.Lang, MaxLangLength); err != nil {
		return err
	}
	if err := validateFieldLength("output.s3.bucket", c.Output.S3.Bucket, MaxBucketLength); err != nil {
		return err
	}
	if err := validateFieldLength("output.s3.prefix", c.Output.S3.Prefix, MaxPrefixLength); err != nil {
		return err
	}
	if err := validateURL("output.s3.endpoint", c.Output.S3.Endpoint); err != nil {
		return err
	}
	if c.Output.S3.Bucket != "" && c.Output.S3.Region == "" {
		return fmt.Errorf("%w: output.s3.region: required when a bucket is set", ErrInvalidValue)
	}

	if c.Browser.Timeout < 0 {
		return fmt.Errorf("%w: browser.timeout: must be positive, got %s", ErrInvalidValue, c.Browser.Timeout)
	}
	if c.Browser.Workers < 0 {
		return fmt.Errorf("%w: browser.workers: must be positive, got %d", ErrInvalidValue, c.Browser.Workers)
	}

	if err := validateFieldLength("serve.addr", c.Serve.Addr, MaxAddrLength); err != nil {
		return err
	}
	if c.Serve.Debounce < 0 {
		return fmt.Errorf("%w: serve.debounce: must be positive, got %s", ErrInvalidValue, c.Serve.Debounce)
	}

	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// validateEnum accepts an empty value or one of allowed, case-insensitively.
func validateEnum(fieldName, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %q (must be one of %s)", ErrInvalidValue, fieldName, value, strings.Join(allowed, ", "))
}

// validateURL accepts an empty value or an absolute http(s) URL.
func validateURL(fieldName, value string) error {
	if value == "" {
		return nil
	}
	if err := validateFieldLength(fieldName, value, MaxURLLength); err != nil {
		return err
	}
	u, err := url.Parse(value)
	if err != nil || !fileutil.IsURL(value) || u.Host == "" {
		return fmt.Errorf("%w: %s: %q is not an http(s) URL", ErrInvalidValue, fieldName, value)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Render:  RenderConfig{Theme: "light", MathMode: "parse"},
		Output:  OutputConfig{Format: FormatStandalone, Lang: "en"},
		Browser: BrowserConfig{Timeout: DefaultTimeout},
		Serve:   ServeConfig{Addr: DefaultAddr, Debounce: DefaultDebounce},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Fields the file leaves unset keep their DefaultConfig values.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SearchPaths returns the locations resolveConfigPath tries for name, in
// order: current directory, then the user config directory.
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, AppDir, name+ext))
		}
	}
	return paths
}

// resolveConfigPath searches for a config file by name in SearchPaths.
func resolveConfigPath(name string) (string, error) {
	paths := SearchPaths(name)
	for _, p := range paths {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}
