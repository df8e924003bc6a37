package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alnah/go-mdrender/internal/fileutil"
)

// Permissions for written files and created directories.
const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// DirSink writes documents below Root, creating parent directories.
type DirSink struct {
	Root string
}

// NewDirSink returns a sink rooted at root. An empty root means the
// current directory.
func NewDirSink(root string) *DirSink {
	if root == "" {
		root = "."
	}
	return &DirSink{Root: root}
}

// Write implements Sink.
func (d *DirSink) Write(ctx context.Context, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned, err := cleanName(name)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(d.Root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return "", fmt.Errorf("%w: creating directory: %v", ErrWrite, err)
	}
	if err := fileutil.WriteFileAtomic(dest, content, filePerm); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, dest, err)
	}
	return dest, nil
}
