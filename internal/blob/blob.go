// Package blob is the entry point for object storage. Callers depend on
// blob.Store and the constructors here; only this package imports the
// drivers under internal/infra/blob.
package blob

import (
	"context"

	"statefacts/internal/blob/core"
	fsstore "statefacts/internal/infra/blob/fs"
	memorystore "statefacts/internal/infra/blob/memory"
	s3store "statefacts/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the blob storage contract.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewMemory returns an empty in-process store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a store bound to cfg.Bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }
