// Package store provides the blob storage the memory core persists into.
//
// The core only ever touches the six primitives on Store; everything else
// (real filesystem, in-memory filesystem for tests) hides behind hackpadfs.
package store

// Listing is the result of listing one directory level.
type Listing struct {
	Files   []string
	Folders []string
}

// Store is path-keyed blob storage. Paths are slash-separated and relative
// to the store root; implementations must treat a missing parent directory
// on Write as an error (callers create directories explicitly via MkdirAll).
type Store interface {
	Exists(path string) bool
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
	Remove(path string) error
	MkdirAll(path string) error
	List(dir string) (Listing, error)
}
