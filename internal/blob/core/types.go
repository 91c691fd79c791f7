// Package core defines core abstractions for blob storage backends
// used internally by higher-level services.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Part identifies one staged chunk of a multipart upload. Number is the
// 1-based upload position; ID is the backend handle returned by StageChunk.
type Part struct {
	Number int32
	ID     string
}

// Store provides a thin S3-like abstraction used by higher layers. Multipart
// semantics mirror the minimal S3 subset so the S3 adapter is nearly 1:1
// while filesystem and memory adapters emulate them with staging areas.
type Store interface {
	// Put stores a new blob at key. MUST fail if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves the blob contents and metadata.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has the provided prefix, ordered by key ascending.
	List(ctx context.Context, prefix string) ([]Info, error)

	// CreateMultipart allocates a multipart upload at key and returns its handle.
	CreateMultipart(ctx context.Context, key string, opts PutOptions) (string, error)
	// StageChunk uploads one part of a multipart upload and returns the part handle.
	StageChunk(ctx context.Context, key, uploadID string, partNumber int32, content []byte) (Part, error)
	// CompleteMultipart assembles the staged parts, in part-number order, into
	// the final object.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) (Info, error)
	// AbortMultipart discards an in-flight multipart upload and its staged
	// parts. Aborting an unknown upload is not an error.
	AbortMultipart(ctx context.Context, key, uploadID string) error

	// Driver returns the configured backend driver string.
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
