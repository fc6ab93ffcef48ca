package cache

import (
	"context"
)

// CacheKind is used to separate key spaces.
type CacheKind uint8

const (
	CacheKindUnknown     CacheKind = iota
	CacheKindMatrixBlock           // decoded matrix value blocks
	CacheKindBlob                  // raw blob store blocks
)

// CacheKey identifies an immutable block.
type CacheKey struct {
	Kind CacheKind
	// Path identifies the source (matrix identity or blob name).
	Path string
	// Offset is a logical block identifier (byte offset or block index).
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; caller must treat it as immutable.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// InvalidatePath returns a predicate matching every key of the given source.
func InvalidatePath(path string) func(CacheKey) bool {
	return func(k CacheKey) bool { return k.Path == path }
}
