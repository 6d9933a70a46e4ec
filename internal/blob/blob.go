// Package blob re-exports the blob abstractions and opens the configured backend.
package blob

import (
	"context"
	"fmt"

	"prodigymun/internal/blob/core"
	"prodigymun/internal/infra/blob/fs"
	"prodigymun/internal/infra/blob/memory"
	"prodigymun/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open constructs the backend named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver, err := core.ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
