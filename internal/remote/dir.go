package remote

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/soyeahso/chatrelay/internal/store"
)

// Dir stores objects as files in a local directory.
type Dir struct {
	root string
}

// NewDir creates a directory-backed store rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Name() string { return "dir" }

// Root returns the directory objects are written to.
func (d *Dir) Root() string { return d.root }

// Put writes data to root/name atomically.
func (d *Dir) Put(ctx context.Context, name, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("invalid object name %q", name)
	}
	if err := store.WriteAtomic(filepath.Join(d.root, name), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
