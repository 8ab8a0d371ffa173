package state

import (
	"io"
	"time"
)

// SessionStore handles session persistence operations.
type SessionStore interface {
	SaveSession(rec *SessionRecord) error
	// LoadSession returns nil, nil for an unknown id.
	LoadSession(id string) (*SessionRecord, error)
	DeleteSession(id string) error
	ListSessionIDs() ([]string, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Purger removes stale data.
type Purger interface {
	PurgeOldSessions(olderThan time.Duration) (int64, error)
}

// StateStore composes the focused interfaces.
type StateStore interface {
	io.Closer
	Migrator
	SessionStore
	Purger
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore   = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ Purger       = (*DB)(nil)
)
