// Package output writes rendered documents to their destinations: a local
// directory, an S3 bucket, or both.
package output

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Sentinel errors for output operations.
var (
	ErrInvalidName = errors.New("invalid output name")
	ErrWrite       = errors.New("failed to write output")
	ErrUpload      = errors.New("failed to upload output")
)

// Sink stores one rendered document under a slash-separated relative name
// and reports where it ended up.
type Sink interface {
	Write(ctx context.Context, name string, content []byte) (location string, err error)
}

// cleanName validates a relative output name and returns it in slash form.
// Absolute names and names escaping the destination root are rejected.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q contains a null byte", ErrInvalidName, name)
	}
	slashed := filepath.ToSlash(name)
	if path.IsAbs(slashed) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q leaves the output root", ErrInvalidName, name)
	}
	return cleaned, nil
}

// contentType returns the MIME type for name, defaulting to HTML.
func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "text/html; charset=utf-8"
}

// Multi writes to every sink in order and stops at the first failure.
// The returned location is the last sink's.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, name string, content []byte) (string, error) {
	var location string
	for _, s := range m {
		loc, err := s.Write(ctx, name, content)
		if err != nil {
			return "", err
		}
		location = loc
	}
	return location, nil
}
