// Package storage defines the persistence contract for visitor sessions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
)

var (
	// ErrNotFound indicates a requested session record is missing.
	ErrNotFound = errors.New("session not found")
	// ErrConflict indicates a mutation lost a revision compare-and-set race.
	// The condition is transient; callers retry the command.
	ErrConflict = errors.New("session revision conflict")
)

// Transition produces the next session value from the current one. It must
// not modify the revision; the store owns the increment. Returning an error
// aborts the mutation with no state change.
type Transition func(domain.Session) (domain.Session, error)

// SessionStore persists visitor sessions.
//
// Mutate is the only state-change path. It is atomic per session id: the
// current record is loaded, the transition applied, and the result written
// back guarded by a compare-and-set on the revision. Mutations on different
// sessions proceed independently.
type SessionStore interface {
	// Create inserts a pending session. It is idempotent: when the id
	// already exists the stored record is returned unchanged.
	Create(ctx context.Context, session domain.Session) (domain.Session, error)

	// Get returns the current session snapshot or ErrNotFound.
	Get(ctx context.Context, sessionID string) (domain.Session, error)

	// List returns all sessions, most recently created first.
	List(ctx context.Context) ([]domain.Session, error)

	// Mutate applies transition to the session and commits the result with
	// an incremented revision. Returns ErrNotFound for unknown ids and
	// ErrConflict when a concurrent mutation won the revision race.
	Mutate(ctx context.Context, sessionID string, transition Transition) (domain.Session, error)

	// TouchLastSeen records visitor re-contact without bumping the revision.
	TouchLastSeen(ctx context.Context, sessionID string, seenAt time.Time) error

	// Delete removes the session record. Returns ErrNotFound when absent.
	Delete(ctx context.Context, sessionID string) error
}
