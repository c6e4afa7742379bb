package store

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// FSStore implements Store on top of any writable hackpadfs filesystem.
type FSStore struct {
	fsys hackpadfs.FS
}

// NewFSStore wraps an existing hackpadfs filesystem (e.g. mem.NewFS() in tests).
func NewFSStore(fsys hackpadfs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// NewWorkspaceStore opens the real filesystem rooted at the workspace
// directory, creating it if necessary.
func NewWorkspaceStore(workspace string) (*FSStore, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", workspace, err)
	}

	root := osfs.NewFS()
	sub := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if err := hackpadfs.MkdirAll(root, sub, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", abs, err)
	}
	fsys, err := hackpadfs.Sub(root, sub)
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", abs, err)
	}
	return &FSStore{fsys: fsys}, nil
}

func (s *FSStore) Exists(path string) bool {
	_, err := fs.Stat(s.fsys, path)
	return err == nil
}

func (s *FSStore) Read(path string) ([]byte, error) {
	return hackpadfs.ReadFile(s.fsys, path)
}

func (s *FSStore) Write(path string, content []byte) error {
	return hackpadfs.WriteFullFile(s.fsys, path, content, 0o644)
}

func (s *FSStore) Remove(path string) error {
	return hackpadfs.Remove(s.fsys, path)
}

func (s *FSStore) MkdirAll(path string) error {
	return hackpadfs.MkdirAll(s.fsys, path, 0o755)
}

// List returns the files and folders directly under dir, both sorted by name.
// A missing directory lists as empty: callers treat "nothing there yet" and
// "never created" identically.
func (s *FSStore) List(dir string) (Listing, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		if !s.Exists(dir) {
			return Listing{}, nil
		}
		return Listing{}, fmt.Errorf("list %s: %w", dir, err)
	}

	var out Listing
	for _, e := range entries {
		if e.IsDir() {
			out.Folders = append(out.Folders, e.Name())
		} else {
			out.Files = append(out.Files, e.Name())
		}
	}
	sort.Strings(out.Files)
	sort.Strings(out.Folders)
	return out, nil
}
