// Package blob exposes the blob storage abstraction and the driver factory.
// Higher layers import this package only; concrete drivers live under
// internal/infra/blob.
package blob

import (
	"context"
	"fmt"

	"ensemblestore/internal/blob/core"
	"ensemblestore/internal/infra/blob/fs"
	"ensemblestore/internal/infra/blob/memory"
	"ensemblestore/internal/infra/blob/s3"
)

// Re-exported core types so callers depend on one import path.
type (
	Store      = core.Store
	Driver     = core.Driver
	Info       = core.Info
	Part       = core.Part
	PutOptions = core.PutOptions
)

// Driver identifiers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported mirrors core.ErrUnsupported.
var ErrUnsupported = core.ErrUnsupported

// Options carries driver selection plus driver-specific settings.
type Options struct {
	Driver Driver

	// Filesystem driver.
	FSRoot string

	// S3 driver.
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
	S3PathStyle       bool
}

// Open constructs the blob store selected by opts.Driver. An empty driver
// defaults to the filesystem implementation.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(opts.FSRoot)
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Region:          opts.S3Region,
			Bucket:          opts.S3Bucket,
			Endpoint:        opts.S3Endpoint,
			AccessKeyID:     opts.S3AccessKeyID,
			SecretAccessKey: opts.S3SecretAccessKey,
			SessionToken:    opts.S3SessionToken,
			PathStyle:       opts.S3PathStyle,
		})
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
