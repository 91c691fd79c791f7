// Package config loads service configuration from the process environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"ensemblestore/internal/blob"
)

// Environment variables:
//
//	ENSEMBLE_STORAGE_DATABASE         memory | sqlite:<path> | postgres://... (default memory)
//	ENSEMBLE_STORAGE_TOKEN            shared bearer token; empty disables auth
//	ENSEMBLE_STORAGE_LISTEN           listen address (default :8000)
//	ENSEMBLE_STORAGE_BLOB_DRIVER      inline | fs | s3 | memory (default inline)
//	ENSEMBLE_STORAGE_BLOB_FS_ROOT     directory root when driver=fs
//	ENSEMBLE_STORAGE_BLOB_S3_BUCKET   bucket name (required for s3)
//	ENSEMBLE_STORAGE_BLOB_S3_REGION   region (default us-east-1)
//	ENSEMBLE_STORAGE_BLOB_S3_ENDPOINT custom endpoint, e.g. MinIO
//	ENSEMBLE_STORAGE_BLOB_S3_PATH_STYLE true|false
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN

// BlobDriverInline keeps file content in the entity store instead of an
// external blob backend.
const BlobDriverInline = "inline"

// Config holds the resolved service configuration.
type Config struct {
	Database   string
	Token      string
	ListenAddr string

	BlobDriver string
	Blob       blob.Options
}

// FromEnv reads configuration from the environment, applying defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Database:   getenv("ENSEMBLE_STORAGE_DATABASE", "memory"),
		Token:      os.Getenv("ENSEMBLE_STORAGE_TOKEN"),
		ListenAddr: getenv("ENSEMBLE_STORAGE_LISTEN", ":8000"),
		BlobDriver: getenv("ENSEMBLE_STORAGE_BLOB_DRIVER", BlobDriverInline),
	}
	switch cfg.BlobDriver {
	case BlobDriverInline:
	case string(blob.DriverFilesystem), string(blob.DriverS3), string(blob.DriverMemory):
		cfg.Blob = blob.Options{
			Driver:            blob.Driver(cfg.BlobDriver),
			FSRoot:            os.Getenv("ENSEMBLE_STORAGE_BLOB_FS_ROOT"),
			S3Bucket:          os.Getenv("ENSEMBLE_STORAGE_BLOB_S3_BUCKET"),
			S3Region:          os.Getenv("ENSEMBLE_STORAGE_BLOB_S3_REGION"),
			S3Endpoint:        os.Getenv("ENSEMBLE_STORAGE_BLOB_S3_ENDPOINT"),
			S3AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			S3SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			S3SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			S3PathStyle:       strings.EqualFold(os.Getenv("ENSEMBLE_STORAGE_BLOB_S3_PATH_STYLE"), "true"),
		}
		if cfg.Blob.Driver == blob.DriverS3 && cfg.Blob.S3Bucket == "" {
			return Config{}, fmt.Errorf("ENSEMBLE_STORAGE_BLOB_S3_BUCKET required for s3 driver")
		}
	default:
		return Config{}, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
	return cfg, nil
}

// ExternalBlobs reports whether an external blob backend is configured.
func (c Config) ExternalBlobs() bool { return c.BlobDriver != BlobDriverInline }

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
