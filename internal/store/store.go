// Package store defines the shared key-value store every instance coordinates through.
//
// Values are JSON documents addressed by slash-separated paths such as
// "queue/global" or "queue/patients/{id}". All cross-instance coordination goes
// through Transact, which applies an update function atomically to one path.
package store

import (
	"context"
	"strings"
)

// TxFunc computes the new value of a path from its current value. current is
// nil when the path is absent. Returning a nil value aborts the transaction
// without writing; returning an error aborts it and Transact returns that error.
//
// A TxFunc may be invoked more than once when the store retries on conflict, so
// it must not have side effects.
type TxFunc func(current []byte) ([]byte, error)

// Change is emitted for every write to a watched path or one of its descendants.
type Change struct {
	Path    string
	Deleted bool
}

type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Children(ctx context.Context, path string) (map[string][]byte, error)
	Set(ctx context.Context, path string, value []byte) error
	Delete(ctx context.Context, path string) error
	Transact(ctx context.Context, path string, fn TxFunc) ([]byte, error)
	Watch(ctx context.Context, path string) (<-chan Change, error)
	Connectivity(ctx context.Context) <-chan bool
	Close() error
}

// Join builds a store path from its segments.
func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}

// Split returns the parent collection path and the final segment.
func Split(path string) (parent, name string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Matches reports whether a change at changed is visible to a watcher of path.
func Matches(path, changed string) bool {
	path = strings.Trim(path, "/")
	changed = strings.Trim(changed, "/")
	if path == "" || path == changed {
		return true
	}
	return strings.HasPrefix(changed, path+"/")
}
