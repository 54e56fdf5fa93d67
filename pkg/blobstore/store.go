// Package blobstore abstracts the object store SnapshotService uploads and
// restores machine snapshot chunks through. The
// interface is presign-shaped so a production deployment can swap in an
// S3-compatible backend without touching SnapshotService.
package blobstore

import "time"

// Store is the BlobStore contract: presigned upload/download
// URLs, prefix listing for chunked objects, and deletion for retention GC.
type Store interface {
	PresignUpload(key string, ttl time.Duration) (url string, err error)
	PresignDownload(key string, ttl time.Duration) (url string, err error)
	// List returns keys under prefix in lexicographic order, the same order
	// restore must read chunks back in.
	List(prefix string) ([]string, error)
	Delete(key string) error
}
