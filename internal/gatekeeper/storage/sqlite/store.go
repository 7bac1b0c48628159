// Package sqlite provides SQLite-backed persistence for visitor sessions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage"
	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage/sqlite/migrations"
	sqlitemigrate "github.com/ayoluwanimi/admin-pan-main/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for session state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a session SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts a pending session, returning the stored record unchanged
// when the id already exists.
func (s *Store) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Session{}, fmt.Errorf("storage is not configured")
	}
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}
	if session.CreatedAt.IsZero() || session.LastSeenAt.IsZero() {
		return domain.Session{}, fmt.Errorf("session timestamps are required")
	}

	rotationSet, err := encodeRotationSet(session.RotationSet)
	if err != nil {
		return domain.Session{}, err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (
	id, state, assigned_page, rotation_set, rotation_interval_ms, current_page_index,
	revision, user_agent, screen, timezone, languages, created_at, last_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`,
		session.ID,
		string(session.State),
		session.AssignedPage,
		rotationSet,
		session.RotationIntervalMs,
		session.CurrentPageIndex,
		session.Revision,
		session.Metadata.UserAgent,
		session.Metadata.Screen,
		session.Metadata.Timezone,
		session.Metadata.Languages,
		toMillis(session.CreatedAt),
		toMillis(session.LastSeenAt),
	); err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}

	return s.Get(ctx, session.ID)
}

// Get returns the current session snapshot.
func (s *Store) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Session{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, state, assigned_page, rotation_set, rotation_interval_ms, current_page_index,
       revision, user_agent, screen, timezone, languages, created_at, last_seen_at
FROM sessions
WHERE id = ?
`, sessionID)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// List returns all sessions, most recently created first.
func (s *Store) List(ctx context.Context) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, state, assigned_page, rotation_set, rotation_interval_ms, current_page_index,
       revision, user_agent, screen, timezone, languages, created_at, last_seen_at
FROM sessions
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, scanErr := scanSession(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan session row: %w", scanErr)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// Mutate applies transition under a revision compare-and-set and commits the
// result with an incremented revision. The last-seen timestamp is owned by
// TouchLastSeen, so a heartbeat landing mid-mutation is never reverted.
func (s *Store) Mutate(ctx context.Context, sessionID string, transition storage.Transition) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Session{}, fmt.Errorf("storage is not configured")
	}
	if transition == nil {
		return domain.Session{}, fmt.Errorf("transition is required")
	}

	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	next, err := transition(current)
	if err != nil {
		return domain.Session{}, err
	}
	next.ID = current.ID
	next.Revision = current.Revision + 1

	rotationSet, err := encodeRotationSet(next.RotationSet)
	if err != nil {
		return domain.Session{}, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sessions
SET state = ?, assigned_page = ?, rotation_set = ?, rotation_interval_ms = ?,
    current_page_index = ?, revision = ?
WHERE id = ? AND revision = ?
`,
		string(next.State),
		next.AssignedPage,
		rotationSet,
		next.RotationIntervalMs,
		next.CurrentPageIndex,
		next.Revision,
		current.ID,
		current.Revision,
	)
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		// The row either disappeared or moved past our revision.
		if _, getErr := s.Get(ctx, current.ID); errors.Is(getErr, storage.ErrNotFound) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, storage.ErrConflict
	}
	return next, nil
}

// TouchLastSeen records visitor re-contact without bumping the revision.
func (s *Store) TouchLastSeen(ctx context.Context, sessionID string, seenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.ErrNotFound
	}
	if seenAt.IsZero() {
		return fmt.Errorf("seen at is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sessions SET last_seen_at = ? WHERE id = ?
`, toMillis(seenAt), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the session record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner func(dest ...any) error

func scanSession(scan scanner) (domain.Session, error) {
	var session domain.Session
	var state string
	var rotationSet string
	var createdAt int64
	var lastSeenAt int64
	if err := scan(
		&session.ID,
		&state,
		&session.AssignedPage,
		&rotationSet,
		&session.RotationIntervalMs,
		&session.CurrentPageIndex,
		&session.Revision,
		&session.Metadata.UserAgent,
		&session.Metadata.Screen,
		&session.Metadata.Timezone,
		&session.Metadata.Languages,
		&createdAt,
		&lastSeenAt,
	); err != nil {
		return domain.Session{}, err
	}
	session.State = domain.State(state)
	set, err := decodeRotationSet(rotationSet)
	if err != nil {
		return domain.Session{}, err
	}
	session.RotationSet = set
	session.CreatedAt = fromMillis(createdAt)
	session.LastSeenAt = fromMillis(lastSeenAt)
	return session, nil
}

func encodeRotationSet(set []string) (string, error) {
	if len(set) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encode rotation set: %w", err)
	}
	return string(encoded), nil
}

func decodeRotationSet(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" {
		return nil, nil
	}
	var set []string
	if err := json.Unmarshal([]byte(value), &set); err != nil {
		return nil, fmt.Errorf("decode rotation set: %w", err)
	}
	return set, nil
}
