package domain

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestNewSessionStartsPending(t *testing.T) {
	session, err := NewSession("  sess-1  ", Metadata{UserAgent: "ua"}, fixedNow)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if session.ID != "sess-1" {
		t.Fatalf("id = %q, want trimmed %q", session.ID, "sess-1")
	}
	if session.State != StatePending {
		t.Fatalf("state = %q, want %q", session.State, StatePending)
	}
	if session.Metadata.UserAgent != "ua" {
		t.Fatalf("user agent = %q, want %q", session.Metadata.UserAgent, "ua")
	}
	if !session.CreatedAt.Equal(fixedNow()) || !session.LastSeenAt.Equal(fixedNow()) {
		t.Fatalf("timestamps = %v/%v, want %v", session.CreatedAt, session.LastSeenAt, fixedNow())
	}
}

func TestNewSessionRejectsEmptyID(t *testing.T) {
	if _, err := NewSession("   ", Metadata{}, fixedNow); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("err = %v, want ErrEmptyID", err)
	}
}

func TestApproveSingleAssignsPage(t *testing.T) {
	session := mustNewSession(t, "sess-1")

	approved := session.ApproveSingle("page-a")
	if approved.State != StateApprovedSingle {
		t.Fatalf("state = %q, want %q", approved.State, StateApprovedSingle)
	}
	if approved.AssignedPage != "page-a" {
		t.Fatalf("assigned page = %q, want %q", approved.AssignedPage, "page-a")
	}
}

func TestApproveSingleWithEmptyPageKeepsAssignment(t *testing.T) {
	session := mustNewSession(t, "sess-1").ApproveSingle("page-a")

	reapproved := session.ApproveSingle("")
	if reapproved.AssignedPage != "page-a" {
		t.Fatalf("assigned page = %q, want previous %q", reapproved.AssignedPage, "page-a")
	}
}

func TestApproveSingleWhileRotatingClearsRotation(t *testing.T) {
	session := mustStartRotation(t, mustNewSession(t, "sess-1"), []string{"a", "b", "c"}, 2000)

	approved := session.ApproveSingle("page-x")
	assertRotationCleared(t, approved)
	if approved.State != StateApprovedSingle {
		t.Fatalf("state = %q, want %q", approved.State, StateApprovedSingle)
	}
}

func TestBlockClearsRotation(t *testing.T) {
	session := mustStartRotation(t, mustNewSession(t, "sess-1"), []string{"a", "b"}, 1500)

	blocked := session.Block()
	if blocked.State != StateBlocked {
		t.Fatalf("state = %q, want %q", blocked.State, StateBlocked)
	}
	assertRotationCleared(t, blocked)
}

func mustNewSession(t *testing.T, sessionID string) Session {
	t.Helper()
	session, err := NewSession(sessionID, Metadata{}, fixedNow)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func mustStartRotation(t *testing.T, session Session, pageIDs []string, intervalMs int) Session {
	t.Helper()
	rotating, err := session.StartRotation(pageIDs, intervalMs)
	if err != nil {
		t.Fatalf("start rotation: %v", err)
	}
	return rotating
}

func assertRotationCleared(t *testing.T, session Session) {
	t.Helper()
	if session.RotationSet != nil {
		t.Fatalf("rotation set = %v, want cleared", session.RotationSet)
	}
	if session.RotationIntervalMs != 0 {
		t.Fatalf("rotation interval = %d, want 0", session.RotationIntervalMs)
	}
	if session.CurrentPageIndex != 0 {
		t.Fatalf("current page index = %d, want 0", session.CurrentPageIndex)
	}
}
