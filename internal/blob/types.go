// Package blob is the entry point for blob storage. It re-exports the core
// contract and constructs the infra-backed drivers; other packages depend on
// blob.Store and never import the drivers directly.
package blob

import (
	"errors"

	"binmap/internal/blob/core"
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
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates Put was called for a key that is already stored.
	ErrExists = core.ErrExists
)

// IsNotFound reports whether err means the blob does not exist.
func IsNotFound(err error) bool { return errors.Is(err, core.ErrNotFound) }
