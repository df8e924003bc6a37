package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-mdrender/internal/config"
)

// envPrefix marks the CLI's environment variables.
const envPrefix = "MDRENDER_"

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	// Rendering
	ConfigPath string // MDRENDER_CONFIG: config file name or path
	Theme      string // MDRENDER_THEME: light or dark
	MathMode   string // MDRENDER_MATH_MODE: parse or regex
	MermaidURL string // MDRENDER_MERMAID_URL: diagram engine script
	MathJaxURL string // MDRENDER_MATHJAX_URL: math engine script

	// Output
	OutputDir string // MDRENDER_OUTPUT_DIR: output directory
	Format    string // MDRENDER_FORMAT: fragment, standalone, self-contained
	S3Bucket  string // MDRENDER_S3_BUCKET: upload bucket
	S3Prefix  string // MDRENDER_S3_PREFIX: key prefix
	S3Region  string // MDRENDER_S3_REGION: bucket region

	// Runtime
	Timeout time.Duration // MDRENDER_TIMEOUT: per-document timeout
	Workers int           // MDRENDER_WORKERS: parallel workers
	Addr    string        // MDRENDER_ADDR: preview server address
}

// knownEnvVars lists valid MDRENDER_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"MDRENDER_CONFIG":      true,
	"MDRENDER_THEME":       true,
	"MDRENDER_MATH_MODE":   true,
	"MDRENDER_MERMAID_URL": true,
	"MDRENDER_MATHJAX_URL": true,
	"MDRENDER_OUTPUT_DIR":  true,
	"MDRENDER_FORMAT":      true,
	"MDRENDER_S3_BUCKET":   true,
	"MDRENDER_S3_PREFIX":   true,
	"MDRENDER_S3_REGION":   true,
	"MDRENDER_TIMEOUT":     true,
	"MDRENDER_WORKERS":     true,
	"MDRENDER_ADDR":        true,
	"MDRENDER_CONTAINER":   true, // read by doctor
}

// loadEnvConfig reads configuration from environment variables.
// Malformed durations and counts are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath: os.Getenv("MDRENDER_CONFIG"),
		Theme:      os.Getenv("MDRENDER_THEME"),
		MathMode:   os.Getenv("MDRENDER_MATH_MODE"),
		MermaidURL: os.Getenv("MDRENDER_MERMAID_URL"),
		MathJaxURL: os.Getenv("MDRENDER_MATHJAX_URL"),
		OutputDir:  os.Getenv("MDRENDER_OUTPUT_DIR"),
		Format:     os.Getenv("MDRENDER_FORMAT"),
		S3Bucket:   os.Getenv("MDRENDER_S3_BUCKET"),
		S3Prefix:   os.Getenv("MDRENDER_S3_PREFIX"),
		S3Region:   os.Getenv("MDRENDER_S3_REGION"),
		Addr:       os.Getenv("MDRENDER_ADDR"),
	}

	if timeout := os.Getenv("MDRENDER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if workers := os.Getenv("MDRENDER_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized MDRENDER_* variables.
// Helps catch typos like MDRENDER_THEMES instead of MDRENDER_THEME.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix) {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig overrides config values with the variables that are set.
// The config already holds file values over defaults, so this gives:
// CLI flags > env vars > config file > defaults
// (CLI flags are applied afterwards by each command)
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	setIf(&cfg.Render.Theme, env.Theme)
	setIf(&cfg.Render.MathMode, env.MathMode)
	setIf(&cfg.Render.MermaidURL, env.MermaidURL)
	setIf(&cfg.Render.MathJaxURL, env.MathJaxURL)

	setIf(&cfg.Output.Dir, env.OutputDir)
	setIf(&cfg.Output.Format, env.Format)
	setIf(&cfg.Output.S3.Bucket, env.S3Bucket)
	setIf(&cfg.Output.S3.Prefix, env.S3Prefix)
	setIf(&cfg.Output.S3.Region, env.S3Region)

	setIf(&cfg.Serve.Addr, env.Addr)
	if env.Timeout > 0 {
		cfg.Browser.Timeout = env.Timeout
	}
	if env.Workers > 0 {
		cfg.Browser.Workers = env.Workers
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
