package artifact

import (
	"context"
	"fmt"
)

// StoreType represents the type of artifact storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// GCSConfig holds configuration for the GCS backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// Config selects and configures a backend.
type Config struct {
	Type StoreType
	Dir  string
	S3   S3Config
	GCS  GCSConfig
}

// New creates an artifact store for cfg.Type. An empty type means fs.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeFS:
		dir := cfg.Dir
		if dir == "" {
			dir = ".ampa/artifacts"
		}
		return NewFileStore(dir)
	case StoreTypeS3:
		return NewS3Store(ctx, cfg.S3)
	case StoreTypeGCS:
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}
