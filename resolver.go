package rnaget

import (
	"context"
	"fmt"
	"sync"
)

// Resolver maps expression IDs to matrix blob names.
// Unknown IDs must yield an error matching ErrNotFound or fs.ErrNotExist.
type Resolver interface {
	ResolveExpression(ctx context.Context, id string) (string, error)
}

// MapResolver is an in-memory Resolver. It is safe for concurrent use.
type MapResolver struct {
	mu    sync.RWMutex
	paths map[string]string
}

// NewMapResolver returns a resolver preloaded with paths.
func NewMapResolver(paths map[string]string) *MapResolver {
	r := &MapResolver{paths: make(map[string]string, len(paths))}
	for id, p := range paths {
		r.paths[id] = p
	}
	return r
}

// Register maps id to path.
func (r *MapResolver) Register(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]string)
	}
	r.paths[id] = path
}

// ResolveExpression implements Resolver.
func (r *MapResolver) ResolveExpression(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.paths[id]
	if !ok {
		return "", fmt.Errorf("expression %q: %w", id, ErrNotFound)
	}
	return p, nil
}
