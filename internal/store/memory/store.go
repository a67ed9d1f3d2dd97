// Package memory is an in-process store.Store. Transactions are serialized by a
// single mutex, which gives the same guarantee the shared store provides across
// instances.
package memory

import (
	"context"
	"strings"
	"sync"

	"clinic-queue/internal/store"
)

const watchBuffer = 64

type watcher struct {
	path string
	ch   chan store.Change
}

type Store struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[*watcher]struct{}
	closed   bool
}

func New() *Store {
	return &Store{
		data:     make(map[string][]byte),
		watchers: make(map[*watcher]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	value, ok := s.data[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(value), nil
}

func (s *Store) Children(ctx context.Context, path string) (map[string][]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	prefix := path + "/"
	out := make(map[string][]byte)
	for key, value := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		out[name] = clone(value)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.data[path] = clone(value)
	s.notify(store.Change{Path: path})
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.data[path]; !ok {
		return nil
	}
	delete(s.data, path)
	s.notify(store.Change{Path: path, Deleted: true})
	return nil
}

func (s *Store) Transact(ctx context.Context, path string, fn store.TxFunc) ([]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	current, ok := s.data[path]
	var input []byte
	if ok {
		input = clone(current)
	}
	next, err := fn(input)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return input, nil
	}
	s.data[path] = clone(next)
	s.notify(store.Change{Path: path})
	return clone(next), nil
}

func (s *Store) Watch(ctx context.Context, path string) (<-chan store.Change, error) {
	path = strings.Trim(path, "/")
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	w := &watcher{path: path, ch: make(chan store.Change, watchBuffer)}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
		s.mu.Unlock()
	}()
	return w.ch, nil
}

// Connectivity reports a permanent live link; an in-process store cannot disconnect.
func (s *Store) Connectivity(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	ch <- true
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for w := range s.watchers {
		close(w.ch)
		delete(s.watchers, w)
	}
	return nil
}

// notify must be called with s.mu held. Slow watchers drop changes rather than
// block writers; every change is a hint to re-read, so a dropped one is covered
// by the next.
func (s *Store) notify(change store.Change) {
	for w := range s.watchers {
		if !store.Matches(w.path, change.Path) {
			continue
		}
		select {
		case w.ch <- change:
		default:
		}
	}
}

func clean(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", store.ErrInvalidPath
	}
	return path, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
