package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	mdrender "github.com/alnah/go-mdrender"
	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/hints"
	"github.com/alnah/go-mdrender/internal/output"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], DefaultDeps()))
}

// run executes the CLI and returns the process exit code.
func run(parent context.Context, args []string, deps *Dependencies) int {
	ctx, stop := notifyContext(parent)
	defer stop()

	warnUnknownEnvVars(deps.Stderr)

	root, a := newRootCmd(deps)
	root.SetArgs(args)
	root.SetIn(deps.Stdin)
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %v%s\n", err, hintFor(err, a.configName()))
	}
	return exitCodeFor(err)
}

// hintFor returns an actionable hint for err, or "".
func hintFor(err error, configName string) string {
	switch {
	case errors.Is(err, config.ErrConfigNotFound) && configName != "":
		return hints.ForConfigNotFound(config.SearchPaths(configName))
	case errors.Is(err, mdrender.ErrBrowserConnect):
		return hints.ForBrowserConnect()
	case errors.Is(err, mdrender.ErrScriptLoad):
		return hints.ForScriptLoad()
	case errors.Is(err, output.ErrUpload):
		return hints.ForS3()
	case errors.Is(err, output.ErrWrite):
		return hints.ForOutputDirectory()
	case errors.Is(err, context.DeadlineExceeded):
		return hints.ForTimeout()
	case errors.Is(err, ErrUnknownStyle):
		return hints.ForHighlightStyle(highlightStyles())
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Addr != nil && errors.Is(err, syscall.EADDRINUSE) {
		return hints.ForAddrInUse(opErr.Addr.String())
	}
	return ""
}
