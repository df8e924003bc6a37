package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alnah/go-mdrender/internal/assets"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/hints"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// defaultWidth is used when the terminal size is unknown.
const defaultWidth = 80

// errDoctorFailed reports that doctor found errors, already printed.
var errDoctorFailed = errors.New("doctor found errors")

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Chrome   chromeInfo `json:"chrome"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Config   configInfo `json:"config"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     string `json:"rod_no_sandbox"`
	BrowserBin    string `json:"rod_browser_bin"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempWritable bool `json:"temp_writable"`
}

// configInfo holds the effective configuration checks.
type configInfo struct {
	Source    string `json:"source"` // config path or "defaults"
	Valid     bool   `json:"valid"`
	Prerender bool   `json:"prerender"`
	Assets    string `json:"assets,omitempty"`
	S3Bucket  string `json:"s3_bucket,omitempty"`
}

func doctorCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the system for rendering and preview",
		Long: `Check Chrome, the environment, the temp directory and the effective
configuration. Exits 1 when an error is found; warnings still exit 0.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			result := runDoctor(a)

			if jsonOutput {
				enc := json.NewEncoder(a.deps.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printDoctorResult(a.deps.Stdout, result, outputWidth(a.deps.Stdout))
			}

			if result.Status == statusErrors {
				return errDoctorFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

// runDoctor performs all diagnostic checks.
func runDoctor(a *app) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  os.Getenv("ROD_NO_SANDBOX"),
			BrowserBin: os.Getenv("ROD_BROWSER_BIN"),
		},
	}

	cfg := checkConfig(a, result)
	checkChrome(result, cfg != nil && cfg.Browser.Prerender)
	checkEnvironment(result)
	checkSystem(result)

	switch {
	case len(result.Errors) > 0:
		result.Status = statusErrors
	case len(result.Warnings) > 0:
		result.Status = statusWarnings
	}

	return result
}

// checkConfig loads the effective configuration and checks what it
// points at. Returns nil when the config cannot be loaded.
func checkConfig(a *app, result *doctorResult) *config.Config {
	result.Config.Source = "defaults"
	if name := a.configName(); name != "" {
		result.Config.Source = name
	}

	cfg, err := a.loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Config: %v", err))
		return nil
	}
	result.Config.Valid = true
	result.Config.Prerender = cfg.Browser.Prerender

	if cfg.Assets.BasePath != "" {
		result.Config.Assets = cfg.Assets.BasePath
		if _, err := assets.NewAssetResolver(cfg.Assets.BasePath); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Assets: %v", err))
		}
	}

	if cfg.Output.S3.Bucket != "" {
		result.Config.S3Bucket = cfg.Output.S3.Bucket
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
			result.Warnings = append(result.Warnings,
				"S3 output configured but AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set")
		}
	}
	return cfg
}

// checkChrome detects Chrome/Chromium installation. A missing browser is
// an error only when prerendering is configured.
func checkChrome(result *doctorResult, required bool) {
	report := func(msg string) {
		if required {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg+" (only needed for --prerender)")
		}
	}

	chromePath := result.Env.BrowserBin
	if chromePath == "" {
		var found bool
		chromePath, found = launcher.LookPath()
		if !found {
			report("Chrome/Chromium not found. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}

	if _, err := os.Stat(chromePath); err != nil {
		report(fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath

	out, err := exec.Command(chromePath, "--version").Output() // #nosec G204 -- browser path from env or launcher
	if err == nil {
		result.Chrome.Version = strings.TrimSpace(string(out))
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get Chrome version: %v", err))
	}

	result.Chrome.Sandbox = result.Env.NoSandbox != "1"
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult) {
	result.Env.Container, result.Env.ContainerHint = isContainer()
	result.Env.CI = hints.InCI()

	if (result.Env.Container || result.Env.CI) && result.Env.NoSandbox != "1" && result.Chrome.Found {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer() (bool, string) {
	if os.Getenv("MDRENDER_CONTAINER") == "1" {
		return true, "MDRENDER_CONTAINER=1"
	}
	if hints.IsInContainer() {
		return true, "/.dockerenv"
	}
	// Podman / systemd-nspawn
	if v := os.Getenv("container"); v != "" {
		return true, "container=" + v
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the temp directory is writable.
func checkSystem(result *doctorResult) {
	f, err := os.CreateTemp("", "mdrender-doctor-*")
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", os.TempDir()))
		return
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	result.System.TempWritable = true
}

// outputWidth returns the terminal width of w, then $COLUMNS, then
// defaultWidth.
func outputWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		fd := int(f.Fd()) // #nosec G115 -- file descriptors fit in int
		if term.IsTerminal(fd) {
			if width, _, err := term.GetSize(fd); err == nil && width > 0 {
				return width
			}
		}
	}
	if v := os.Getenv("COLUMNS"); v != "" {
		if width, err := strconv.Atoi(v); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}

// printDoctorResult outputs human-readable diagnostic results, wrapping
// long lines to width.
func printDoctorResult(w io.Writer, r *doctorResult, width int) {
	line := func(format string, args ...any) {
		text := wordwrap.String(fmt.Sprintf(format, args...), width-4)
		fmt.Fprintln(w, indent.String(text, 2))
	}

	fmt.Fprintln(w, "mdrender doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Chrome.Found {
		line("[OK] Found at %s", r.Chrome.Path)
		if r.Chrome.Version != "" {
			line("[OK] Version: %s", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			line("[OK] Sandbox: enabled")
		} else {
			line("[OK] Sandbox: disabled (ROD_NO_SANDBOX=1)")
		}
	} else {
		line("[WARN] Not found")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	line("[OK] Platform: %s/%s", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		line("[OK] Container: detected (%s)", r.Env.ContainerHint)
	}
	if r.Env.CI {
		line("[OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.TempWritable {
		line("[OK] Temp directory: writable")
	} else {
		line("[ERROR] Temp directory: not writable")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration")
	if r.Config.Valid {
		line("[OK] Source: %s", r.Config.Source)
		if r.Config.Prerender {
			line("[OK] Prerender: enabled")
		}
		if r.Config.S3Bucket != "" {
			line("[OK] S3 bucket: %s", r.Config.S3Bucket)
		}
	} else {
		line("[ERROR] Source: %s", r.Config.Source)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			line("[WARN] %s", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			line("[ERROR] %s", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to render")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
