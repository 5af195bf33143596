package domain

import (
	"context"
	"time"
)

// Fixed keys of the local state store
const (
	RefreshTokenKey = "pae_refresh_token"
	SettingsKey     = "racc_demo_config_v1"
)

// SessionInfo describes the current authentication state
type SessionInfo struct {
	Authenticated   bool       `json:"authenticated"`
	Identity        string     `json:"identity,omitempty"`
	Loading         bool       `json:"loading"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
}

// SnapshotRepository defines the interface for incident history persistence
// This follows the Dependency Inversion Principle - domain defines the interface
type SnapshotRepository interface {
	// SaveSnapshot persists the summary of one polling cycle
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// GetSnapshots retrieves snapshot history, newest first
	GetSnapshots(ctx context.Context, from, to time.Time) ([]Snapshot, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}

// StateStore is a small persistent key/value store for client state
// such as the refresh credential and the settings blob.
type StateStore interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error

	// Delete is a no-op for missing keys
	Delete(ctx context.Context, key string) error
}
