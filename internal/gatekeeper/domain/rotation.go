package domain

import "errors"

// Rotation bounds enforced on start.
const (
	MinRotationPages = 2
	MaxRotationPages = 6

	MinRotationIntervalMs = 1000
	MaxRotationIntervalMs = 60000
)

var (
	// ErrInvalidPageCount indicates a rotation set outside the 2-6 page bounds.
	ErrInvalidPageCount = errors.New("rotation requires between 2 and 6 pages")
	// ErrInvalidInterval indicates a rotation interval outside 1000-60000 ms.
	ErrInvalidInterval = errors.New("rotation interval must be between 1000 and 60000 ms")
	// ErrNotRotating indicates a rotation command against a non-rotating session.
	ErrNotRotating = errors.New("session is not rotating")
	// ErrAlreadyRotating indicates a rotation start against a rotating session.
	ErrAlreadyRotating = errors.New("session is already rotating")
)

// StartRotation approves the session into rotation over pageIDs.
//
// The set is kept in submitted order, without dedup, and the position starts
// at the first page. The caller is responsible for resolving every page id
// against the content collaborator before committing the transition.
func (s Session) StartRotation(pageIDs []string, intervalMs int) (Session, error) {
	if s.Rotating() {
		return Session{}, ErrAlreadyRotating
	}
	if len(pageIDs) < MinRotationPages || len(pageIDs) > MaxRotationPages {
		return Session{}, ErrInvalidPageCount
	}
	if intervalMs < MinRotationIntervalMs || intervalMs > MaxRotationIntervalMs {
		return Session{}, ErrInvalidInterval
	}

	set := make([]string, len(pageIDs))
	copy(set, pageIDs)

	s.State = StateApprovedRotating
	s.RotationSet = set
	s.RotationIntervalMs = intervalMs
	s.CurrentPageIndex = 0
	return s, nil
}

// Advance moves the rotation position forward by exactly one step, wrapping
// to the first page after the last. It is the only mutation path for the
// position; there is no jump-to-index operation.
func (s Session) Advance() (Session, error) {
	if !s.Rotating() {
		return Session{}, ErrNotRotating
	}
	s.CurrentPageIndex = (s.CurrentPageIndex + 1) % len(s.RotationSet)
	return s, nil
}

// StopRotation freezes the session on the page it is currently showing.
//
// The visitor keeps whatever they were viewing at the moment of stop rather
// than rewinding to the first page of the set.
func (s Session) StopRotation() (Session, error) {
	if !s.Rotating() {
		return Session{}, ErrNotRotating
	}
	s.AssignedPage = s.RotationSet[s.CurrentPageIndex]
	s.State = StateApprovedSingle
	return s.clearRotation(), nil
}
