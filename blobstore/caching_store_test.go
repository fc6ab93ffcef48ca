package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rnaget/internal/cache"
)

// countingStore wraps a MemoryStore and counts backend reads.
type countingStore struct {
	*MemoryStore
	reads     atomic.Int64
	readBytes atomic.Int64
}

type countingBlob struct {
	Blob
	s *countingStore
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, s: s}, nil
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.s.reads.Add(1)
	n, err := b.Blob.ReadAt(ctx, p, off)
	b.s.readBytes.Add(int64(n))
	return n, err
}

func newCountingStore(t *testing.T, name string, data []byte) *countingStore {
	s := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, s.Put(t.Context(), name, data))
	return s
}

func TestCachingStore_ReadAt(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 255)
	}
	inner := newCountingStore(t, "test", data)

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(inner, c, 256)

	blob, err := store.Open(t.Context(), "test")
	require.NoError(t, err)
	defer blob.Close()

	// First block is fetched whole.
	buf := make([]byte, 100)
	n, err := blob.ReadAt(t.Context(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)
	assert.Equal(t, int64(1), inner.reads.Load())
	assert.Equal(t, int64(256), inner.readBytes.Load())

	// Same range hits the cache.
	_, err = blob.ReadAt(t.Context(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.reads.Load())

	// Spans block 0 (cached) and block 1 (missing).
	n, err = blob.ReadAt(t.Context(), buf, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[200:300], buf)
	assert.Equal(t, int64(2), inner.reads.Load())
	assert.Equal(t, int64(512), inner.readBytes.Load())
}

func TestCachingStore_CoalescesMissingRuns(t *testing.T) {
	data := make([]byte, 1024)
	inner := newCountingStore(t, "test", data)
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), 128)

	blob, err := store.Open(t.Context(), "test")
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := blob.ReadAt(t.Context(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.Equal(t, int64(1), inner.reads.Load())
}

func TestCachingStore_ShortRead(t *testing.T) {
	data := []byte("hello")
	inner := newCountingStore(t, "small", data)
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 256)

	blob, err := store.Open(t.Context(), "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(t.Context(), buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, data, buf[:n])

	_, err = blob.ReadAt(t.Context(), buf, 5)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_ReadRange(t *testing.T) {
	data := []byte("0123456789abcdef")
	inner := newCountingStore(t, "r", data)
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 4)

	blob, err := store.Open(t.Context(), "r")
	require.NoError(t, err)

	rc, err := blob.ReadRange(t.Context(), 3, 7)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456789", string(got))
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	inner := newCountingStore(t, "x", []byte("aaaa"))
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 4)

	blob, err := store.Open(t.Context(), "x")
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = blob.ReadAt(t.Context(), buf, 0)
	require.NoError(t, err)

	require.NoError(t, store.Put(t.Context(), "x", []byte("bbbb")))

	blob, err = store.Open(t.Context(), "x")
	require.NoError(t, err)
	_, err = blob.ReadAt(t.Context(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(buf))
}

func TestCachingStore_NotFound(t *testing.T) {
	store := NewCachingStore(NewMemoryStore(), cache.NewLRUBlockCache(1024, nil), 0)
	_, err := store.Open(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
