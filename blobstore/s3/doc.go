// Package s3 provides an Amazon S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("rnaget/"))
//	svc, err := rnaget.New(ctx, store, store)
//
// # Features
//
//   - Range reads for row-level access to matrix files
//   - Streaming multipart uploads for artifacts through the S3 upload manager
//   - CRC32C checksums on single-shot puts
//   - Automatic pagination for listing
package s3
