// Package guard implements the write-protection policy consulted before any
// file action touches the sandbox: a lock registry keyed by sandbox-relative
// path, and a lookup of the current on-disk content so unchanged writes can
// be skipped.
package guard

import (
	"context"
	"path"
	"sync"
)

// WriteGuard answers whether a path is protected from writes and what its
// current content is, if any.
type WriteGuard interface {
	// IsLocked reports whether path is currently write-protected.
	IsLocked(path string) bool

	// ReadExisting returns the current content of path and whether the file
	// exists.
	ReadExisting(ctx context.Context, path string) (string, bool)
}

// FileReader is the minimal read surface the guard needs from the sandbox.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Registry is an in-memory lock registry implementing WriteGuard. Locks are
// maintained externally (by the session owner); the engine only queries.
type Registry struct {
	mu     sync.RWMutex
	locks  map[string]struct{}
	reader FileReader
}

// NewRegistry creates a registry reading existing content through fs.
func NewRegistry(fs FileReader) *Registry {
	return &Registry{
		locks:  make(map[string]struct{}),
		reader: fs,
	}
}

// Lock marks a path as write-protected.
func (r *Registry) Lock(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[normalize(p)] = struct{}{}
}

// Unlock removes write protection from a path.
func (r *Registry) Unlock(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, normalize(p))
}

// IsLocked reports whether a path is write-protected. A lock on a directory
// protects everything beneath it.
func (r *Registry) IsLocked(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for cur := normalize(p); ; cur = path.Dir(cur) {
		if _, ok := r.locks[cur]; ok {
			return true
		}
		if cur == "/" || cur == "." {
			return false
		}
	}
}

// ReadExisting returns the current content of a path, or ok=false if the
// file does not exist or cannot be read.
func (r *Registry) ReadExisting(ctx context.Context, p string) (string, bool) {
	if r.reader == nil {
		return "", false
	}
	content, err := r.reader.ReadFile(ctx, p)
	if err != nil {
		return "", false
	}
	return content, true
}

func normalize(p string) string {
	return path.Clean("/" + p)
}
