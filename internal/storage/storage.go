// Package storage provides the on-disk segment cache used by the download
// scheduler. All access is scoped to a per-session root directory; the
// whole root is removed on session teardown.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the persistence surface the player core needs. Paths are
// relative to the store's root; the core never touches storage outside it.
type Store interface {
	// EnsureDir creates the directory (and parents) if absent.
	EnsureDir(rel string) error

	// Exists reports whether a file exists at the path.
	Exists(rel string) bool

	// WriteFile writes data to the path, creating or truncating it.
	WriteFile(rel string, data []byte) error

	// ReadFile reads the whole file at the path.
	ReadFile(rel string) ([]byte, error)

	// CopyFile copies an existing file within the store.
	CopyFile(srcRel, dstRel string) error

	// Abs returns the absolute filesystem path for a relative path, for
	// handing artifacts to external collaborators (decoder, audio).
	Abs(rel string) string

	// RemoveAll removes the store's entire root.
	RemoveAll() error
}

// Disk is a Store rooted at a filesystem directory.
type Disk struct {
	root string
}

// NewDisk creates the root directory if needed and returns a Store scoped
// to it.
func NewDisk(root string) (*Disk, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %q: %w", root, err)
	}
	return &Disk{root: root}, nil
}

// Root returns the absolute root directory of the store.
func (d *Disk) Root() string {
	return d.root
}

func (d *Disk) EnsureDir(rel string) error {
	if err := os.MkdirAll(d.Abs(rel), 0o755); err != nil {
		return fmt.Errorf("storage: creating dir %q: %w", rel, err)
	}
	return nil
}

func (d *Disk) Exists(rel string) bool {
	info, err := os.Stat(d.Abs(rel))
	return err == nil && !info.IsDir()
}

func (d *Disk) WriteFile(rel string, data []byte) error {
	if err := os.WriteFile(d.Abs(rel), data, 0o644); err != nil {
		return fmt.Errorf("storage: writing %q: %w", rel, err)
	}
	return nil
}

func (d *Disk) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(d.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("storage: reading %q: %w", rel, err)
	}
	return data, nil
}

func (d *Disk) CopyFile(srcRel, dstRel string) error {
	src, err := os.Open(d.Abs(srcRel))
	if err != nil {
		return fmt.Errorf("storage: opening %q: %w", srcRel, err)
	}
	defer src.Close()

	dst, err := os.Create(d.Abs(dstRel))
	if err != nil {
		return fmt.Errorf("storage: creating %q: %w", dstRel, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("storage: copying %q to %q: %w", srcRel, dstRel, err)
	}
	return nil
}

func (d *Disk) Abs(rel string) string {
	return filepath.Join(d.root, rel)
}

func (d *Disk) RemoveAll() error {
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("storage: removing root %q: %w", d.root, err)
	}
	return nil
}
