package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// freeAddr returns a loopback address nothing listens on.
func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestServe(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "draft.md")
	writeFile(t, src, "# Draft\n\nHello from serve.")
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	stdout := &syncBuffer{}
	deps := &Dependencies{Now: time.Now, Stdin: strings.NewReader(""), Stdout: stdout, Stderr: io.Discard}

	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"serve", src, "--addr", addr}, deps)
	}()

	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(b)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, "Hello from serve.") {
		t.Errorf("page = %q", body)
	}
	if !strings.Contains(stdout.String(), "Serving "+src) {
		t.Errorf("stdout = %q", stdout.String())
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	for _, want := range []string{"mdrender_renders_total", "go_goroutines"} {
		if !strings.Contains(string(metrics), want) {
			t.Errorf("metrics missing %s", want)
		}
	}

	cancel()
	select {
	case code := <-done:
		if code != ExitSuccess {
			t.Errorf("exit code = %d, want %d", code, ExitSuccess)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_AddrInUse(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "draft.md")
	writeFile(t, src, "# Draft")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	code, _, stderr := runCLI(t, "", "serve", src, "--addr", ln.Addr().String())
	if code != ExitGeneral {
		t.Errorf("exit code = %d, want %d", code, ExitGeneral)
	}
	if !strings.Contains(stderr, "--addr") {
		t.Errorf("stderr = %q, want an address hint", stderr)
	}
}
