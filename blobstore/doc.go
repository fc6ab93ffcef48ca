// Package blobstore provides the storage abstraction for matrix files and
// materialized artifacts.
//
// BlobStore is the interface for reading and writing immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, reads through mmap, atomic publish on Close
//   - MemoryStore: map-backed, for tests
//   - CachingStore: wraps any store with a block cache
//   - s3.Store: Amazon S3 with range reads and streaming multipart uploads
//   - minio.Store: MinIO / S3-compatible object stores
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Missing blobs must satisfy errors.Is(err, ErrNotFound).
package blobstore
