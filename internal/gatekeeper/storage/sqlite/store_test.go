package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateIsIdempotentPerID(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)

	first := newTestSession(t, "sess-1", now)
	created, err := store.Create(context.Background(), first)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.State != domain.StatePending {
		t.Fatalf("state = %q, want %q", created.State, domain.StatePending)
	}

	// Approve, then re-create with the same id: the approved record wins.
	if _, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		return s.ApproveSingle("page-a"), nil
	}); err != nil {
		t.Fatalf("mutate session: %v", err)
	}

	again, err := store.Create(context.Background(), newTestSession(t, "sess-1", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("re-create session: %v", err)
	}
	if again.State != domain.StateApprovedSingle {
		t.Fatalf("state after re-create = %q, want existing %q", again.State, domain.StateApprovedSingle)
	}
	if again.AssignedPage != "page-a" {
		t.Fatalf("assigned page = %q, want %q", again.AssignedPage, "page-a")
	}
	if !again.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want original %v", again.CreatedAt, now)
	}
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMutateIncrementsRevisionAndPersistsRotation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	rotating, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		return s.StartRotation([]string{"a", "b", "c"}, 3000)
	})
	if err != nil {
		t.Fatalf("start rotation: %v", err)
	}
	if rotating.Revision != 1 {
		t.Fatalf("revision = %d, want 1", rotating.Revision)
	}

	loaded, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.State != domain.StateApprovedRotating {
		t.Fatalf("state = %q, want %q", loaded.State, domain.StateApprovedRotating)
	}
	if len(loaded.RotationSet) != 3 || loaded.RotationSet[1] != "b" {
		t.Fatalf("rotation set = %v, want [a b c]", loaded.RotationSet)
	}
	if loaded.RotationIntervalMs != 3000 {
		t.Fatalf("interval = %d, want 3000", loaded.RotationIntervalMs)
	}

	stopped, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		return s.StopRotation()
	})
	if err != nil {
		t.Fatalf("stop rotation: %v", err)
	}
	if stopped.Revision != 2 {
		t.Fatalf("revision = %d, want 2", stopped.Revision)
	}

	loaded, err = store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session after stop: %v", err)
	}
	if loaded.RotationSet != nil {
		t.Fatalf("rotation set = %v, want cleared", loaded.RotationSet)
	}
	if loaded.AssignedPage != "a" {
		t.Fatalf("assigned page = %q, want %q", loaded.AssignedPage, "a")
	}
}

func TestMutateTransitionErrorLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	_, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		return s.Advance()
	})
	if !errors.Is(err, domain.ErrNotRotating) {
		t.Fatalf("err = %v, want ErrNotRotating", err)
	}

	loaded, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.Revision != 0 {
		t.Fatalf("revision = %d, want unchanged 0", loaded.Revision)
	}
	if loaded.State != domain.StatePending {
		t.Fatalf("state = %q, want unchanged %q", loaded.State, domain.StatePending)
	}
}

func TestMutateUnknownSessionReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.Mutate(context.Background(), "missing", func(s domain.Session) (domain.Session, error) {
		return s.Block(), nil
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	base := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-old", base)
	seedSession(t, store, "sess-new", base.Add(5*time.Minute))

	sessions, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("session count = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "sess-new" || sessions[1].ID != "sess-old" {
		t.Fatalf("order = [%s %s], want newest first", sessions[0].ID, sessions[1].ID)
	}
}

func TestTouchLastSeenDoesNotBumpRevision(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	seenAt := now.Add(10 * time.Minute)
	if err := store.TouchLastSeen(context.Background(), "sess-1", seenAt); err != nil {
		t.Fatalf("touch last seen: %v", err)
	}

	loaded, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !loaded.LastSeenAt.Equal(seenAt) {
		t.Fatalf("last seen = %v, want %v", loaded.LastSeenAt, seenAt)
	}
	if loaded.Revision != 0 {
		t.Fatalf("revision = %d, want unchanged 0", loaded.Revision)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	if err := store.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Get(context.Background(), "sess-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(context.Background(), "sess-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMutateConflictWhenRevisionMovesUnderneath(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	// A second writer commits between this call's read and its guarded
	// write, so the compare-and-set must miss.
	_, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		if _, raceErr := store.Mutate(context.Background(), "sess-1", func(inner domain.Session) (domain.Session, error) {
			return inner.Block(), nil
		}); raceErr != nil {
			t.Fatalf("out-of-band mutate: %v", raceErr)
		}
		return s.ApproveSingle("page-a"), nil
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	loaded, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.State != domain.StateBlocked {
		t.Fatalf("state = %q, want the committed %q", loaded.State, domain.StateBlocked)
	}
	if loaded.Revision != 1 {
		t.Fatalf("revision = %d, want 1", loaded.Revision)
	}
}

func TestMutateNotFoundWhenRowDeletedUnderneath(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	_, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		if deleteErr := store.Delete(context.Background(), "sess-1"); deleteErr != nil {
			t.Fatalf("out-of-band delete: %v", deleteErr)
		}
		return s.Block(), nil
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMutateKeepsConcurrentHeartbeat(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 21, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", now)

	// A heartbeat lands while the transition is being computed. Committing
	// the mutation must not rewind the fresher last-seen timestamp.
	seenAt := now.Add(20 * time.Minute)
	if _, err := store.Mutate(context.Background(), "sess-1", func(s domain.Session) (domain.Session, error) {
		if touchErr := store.TouchLastSeen(context.Background(), "sess-1", seenAt); touchErr != nil {
			t.Fatalf("touch last seen: %v", touchErr)
		}
		return s.ApproveSingle("page-a"), nil
	}); err != nil {
		t.Fatalf("mutate session: %v", err)
	}

	loaded, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !loaded.LastSeenAt.Equal(seenAt) {
		t.Fatalf("last seen = %v, want heartbeat %v", loaded.LastSeenAt, seenAt)
	}
	if loaded.State != domain.StateApprovedSingle || loaded.Revision != 1 {
		t.Fatalf("session = %q rev %d, want %q rev 1", loaded.State, loaded.Revision, domain.StateApprovedSingle)
	}
}

func newTestSession(t *testing.T, sessionID string, createdAt time.Time) domain.Session {
	t.Helper()
	session, err := domain.NewSession(sessionID, domain.Metadata{UserAgent: "test-agent"}, func() time.Time {
		return createdAt
	})
	if err != nil {
		t.Fatalf("new session %s: %v", sessionID, err)
	}
	return session
}

func seedSession(t *testing.T, store *Store, sessionID string, createdAt time.Time) {
	t.Helper()
	if _, err := store.Create(context.Background(), newTestSession(t, sessionID, createdAt)); err != nil {
		t.Fatalf("seed session %s: %v", sessionID, err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})
	return store
}
