package backend

import (
	"context"

	"fincon/internal/auth"
	"fincon/internal/docstore"
)

// Backend groups every store the server needs. Both implementations keep
// transactions, profiles and credentials in one place.
type Backend interface {
	docstore.Collection
	docstore.ProfileStore
	auth.AccountStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// PingFunc reports whether the backend is ready to serve.
type PingFunc func(ctx context.Context) error

// BackendResult contains the backend instance and its lifecycle hooks
type BackendResult struct {
	Backend Backend
	Ping    PingFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
