// Package storage defines the data-tree file-system abstraction shared by
// the knowledge and session stores.
package storage

import "io/fs"

// Provider is the interface for file operations under one data root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Abs resolves a relative path to an absolute one under the root.
	Abs(path string) (string, error)
	// ReadDir returns the entries of dir sorted by name. A missing dir
	// yields no entries and no error.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// Exists reports whether path names an existing file.
	Exists(path string) (bool, error)
	// DirExists reports whether path names an existing directory.
	DirExists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}
