// Package client keeps a visitor-side replica of one session in sync with
// the server's pushed snapshots.
//
// The server is authoritative: every applied snapshot overwrites the local
// view. Between pushes a rotating session advances its position on a local
// timer so the displayed page keeps cycling even if the connection degrades
// to polling. Local ticks never touch the revision; only server snapshots
// carry one.
package client

import (
	"sync"
	"time"
)

// StateApprovedRotating is the lifecycle state that arms the local timer.
const StateApprovedRotating = "approved_rotating"

// Snapshot is the server's view of one session as delivered over push or
// polling.
type Snapshot struct {
	SessionID          string
	State              string
	AssignedPage       string
	RotationPageCount  int
	CurrentPageIndex   int
	RotationIntervalMs int
	Revision           int64
}

func (s Snapshot) rotating() bool {
	return s.State == StateApprovedRotating && s.RotationPageCount > 0 && s.RotationIntervalMs > 0
}

// Sync reduces server snapshots into a local session view.
type Sync struct {
	mu       sync.Mutex
	view     Snapshot
	haveView bool
	closed   bool
	timer    *time.Timer
	onChange func(Snapshot)
}

// New creates a sync whose onChange hook fires after every accepted
// snapshot and every local rotation tick. The hook runs outside the sync's
// lock; it may call back into the sync.
func New(onChange func(Snapshot)) *Sync {
	return &Sync{onChange: onChange}
}

// Apply overwrites the local view with a server snapshot.
//
// Snapshots are dropped when they carry a revision older than the current
// view, which happens when a poll response races a push for the same
// session. A snapshot with an equal revision is also dropped so a poll
// cannot rewind the locally advanced rotation position.
func (s *Sync) Apply(snapshot Snapshot) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.haveView && snapshot.SessionID == s.view.SessionID && snapshot.Revision <= s.view.Revision {
		s.mu.Unlock()
		return false
	}

	s.view = snapshot
	s.haveView = true
	s.rearmLocked()
	view := s.view
	s.mu.Unlock()

	s.notify(view)
	return true
}

// Current returns the local view, if one has been applied.
func (s *Sync) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.haveView
}

// Teardown stops the local timer and drops the view. Used when the server
// reports the session deleted or the sync is abandoned.
func (s *Sync) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.haveView = false
	s.view = Snapshot{}
	s.stopTimerLocked()
}

// rearmLocked resets the rotation timer for the current view. Every applied
// snapshot restarts the full interval, so a server-confirmed advance or a
// rotation restart begins a fresh phase.
func (s *Sync) rearmLocked() {
	s.stopTimerLocked()
	if !s.view.rotating() {
		return
	}
	interval := time.Duration(s.view.RotationIntervalMs) * time.Millisecond
	s.timer = time.AfterFunc(interval, s.tick)
}

func (s *Sync) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sync) tick() {
	s.mu.Lock()
	if s.closed || !s.haveView || !s.view.rotating() {
		s.mu.Unlock()
		return
	}
	s.view.CurrentPageIndex = (s.view.CurrentPageIndex + 1) % s.view.RotationPageCount
	s.rearmLocked()
	view := s.view
	s.mu.Unlock()

	s.notify(view)
}

func (s *Sync) notify(view Snapshot) {
	if s.onChange != nil {
		s.onChange(view)
	}
}
