package output

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 records PutObject calls.
type fakeS3 struct {
	mu     sync.Mutex
	err    error
	inputs []*s3.PutObjectInput
	bodies []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "readme.html", "readme.html", false},
		{"nested", "guide/intro.html", "guide/intro.html", false},
		{"redundant segments", "guide/./sub/../intro.html", "guide/intro.html", false},
		{"empty", "", "", true},
		{"absolute", "/etc/passwd", "", true},
		{"parent escape", "../outside.html", "", true},
		{"nested escape", "a/../../outside.html", "", true},
		{"dot only", ".", "", true},
		{"null byte", "a\x00.html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := cleanName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("cleanName(%q) error = %v, want ErrInvalidName", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("cleanName(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("cleanName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDirSink_Write(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sink := NewDirSink(root)

	loc, err := sink.Write(context.Background(), "guide/intro.html", []byte("<h1>Intro</h1>"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := filepath.Join(root, "guide", "intro.html")
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "<h1>Intro</h1>" {
		t.Errorf("content = %q", data)
	}
}

func TestDirSink_Errors(t *testing.T) {
	t.Parallel()

	sink := NewDirSink(t.TempDir())

	if _, err := sink.Write(context.Background(), "../escape.html", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("escape error = %v, want ErrInvalidName", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sink.Write(ctx, "a.html", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v, want context.Canceled", err)
	}

	// A file where a directory must go.
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "blocker"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewDirSink(root).Write(context.Background(), "blocker/page.html", []byte("x"))
	if !errors.Is(err, ErrWrite) {
		t.Errorf("blocked dir error = %v, want ErrWrite", err)
	}
}

func TestNewDirSink_DefaultRoot(t *testing.T) {
	t.Parallel()

	if got := NewDirSink("").Root; got != "." {
		t.Errorf("Root = %q, want %q", got, ".")
	}
}

func TestS3Sink_Write(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prefix   string
		file     string
		wantKey  string
		wantType string
	}{
		{"no prefix", "", "index.html", "index.html", "text/html; charset=utf-8"},
		{"prefix", "docs/v1", "guide/intro.html", "docs/v1/guide/intro.html", "text/html; charset=utf-8"},
		{"css asset", "site", "themes.css", "site/themes.css", "text/css; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &fakeS3{}
			sink := NewS3Sink(client, "bucket", tt.prefix)
			sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

			loc, err := sink.Write(context.Background(), tt.file, []byte("content"))
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if loc != "s3://bucket/"+tt.wantKey {
				t.Errorf("location = %q", loc)
			}

			if len(client.inputs) != 1 {
				t.Fatalf("PutObject calls = %d, want 1", len(client.inputs))
			}
			in := client.inputs[0]
			if aws.ToString(in.Bucket) != "bucket" || aws.ToString(in.Key) != tt.wantKey {
				t.Errorf("bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
			}
			if aws.ToString(in.ContentType) != tt.wantType {
				t.Errorf("ContentType = %q, want %q", aws.ToString(in.ContentType), tt.wantType)
			}
			if in.Metadata["render-time"] != "2026-01-02T03:04:05Z" {
				t.Errorf("Metadata = %v", in.Metadata)
			}
			if client.bodies[0] != "content" {
				t.Errorf("body = %q", client.bodies[0])
			}
		})
	}
}

func TestS3Sink_Errors(t *testing.T) {
	t.Parallel()

	client := &fakeS3{err: errors.New("access denied")}
	sink := NewS3Sink(client, "bucket", "p")

	_, err := sink.Write(context.Background(), "a.html", []byte("x"))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("error = %v, want ErrUpload", err)
	}
	if !strings.Contains(err.Error(), "s3://bucket/p/a.html") || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error should name the key and cause: %v", err)
	}

	if _, err := sink.Write(context.Background(), "../a.html", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("escape error = %v, want ErrInvalidName", err)
	}
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	if _, err := envCredentials(context.Background()); !errors.Is(err, ErrUpload) {
		t.Errorf("missing credentials error = %v, want ErrUpload", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "token")

	creds, err := envCredentials(context.Background())
	if err != nil {
		t.Fatalf("envCredentials() error = %v", err)
	}
	if creds.AccessKeyID != "AKIA" || creds.SecretAccessKey != "secret" || creds.SessionToken != "token" {
		t.Errorf("creds = %+v", creds)
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, string, []byte) (string, error) {
	return "", f.err
}

func TestMulti(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	client := &fakeS3{}
	multi := Multi{NewDirSink(root), NewS3Sink(client, "b", "")}

	loc, err := multi.Write(context.Background(), "x.html", []byte("x"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if loc != "s3://b/x.html" {
		t.Errorf("location = %q, want the last sink's", loc)
	}
	if _, err := os.Stat(filepath.Join(root, "x.html")); err != nil {
		t.Errorf("dir sink did not write: %v", err)
	}

	boom := errors.New("boom")
	after := &fakeS3{}
	_, err = Multi{failingSink{boom}, NewS3Sink(after, "b", "")}.Write(context.Background(), "y.html", nil)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if len(after.inputs) != 0 {
		t.Error("sinks after a failure should not run")
	}
}
