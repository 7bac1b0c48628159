package domain

import (
	"errors"
	"strings"
	"time"
)

// State describes what a visitor session is currently shown.
type State string

const (
	// StatePending indicates a session awaiting an operator decision.
	StatePending State = "pending"
	// StateApprovedSingle indicates a session approved onto one page.
	StateApprovedSingle State = "approved_single"
	// StateApprovedRotating indicates a session cycling through a rotation set.
	StateApprovedRotating State = "approved_rotating"
	// StateBlocked indicates a session shown blocked content.
	StateBlocked State = "blocked"
)

var (
	// ErrEmptyID indicates a missing session identifier.
	ErrEmptyID = errors.New("session id is required")
)

// Metadata carries descriptive fields reported by the visitor client.
// The engine stores them opaquely for the operator listing.
type Metadata struct {
	UserAgent string
	Screen    string
	Timezone  string
	Languages string
}

// Session is the authoritative record for one tracked visitor.
//
// RotationSet, RotationIntervalMs and CurrentPageIndex are populated only
// while State is StateApprovedRotating; every transition out of rotation
// clears them in the same mutation.
type Session struct {
	ID                 string
	State              State
	AssignedPage       string
	RotationSet        []string
	RotationIntervalMs int
	CurrentPageIndex   int
	Revision           int64
	Metadata           Metadata
	CreatedAt          time.Time
	LastSeenAt         time.Time
}

// NewSession creates a pending session for a visitor-presented identifier.
func NewSession(sessionID string, meta Metadata, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrEmptyID
	}

	createdAt := now().UTC()
	return Session{
		ID:         sessionID,
		State:      StatePending,
		Metadata:   meta,
		CreatedAt:  createdAt,
		LastSeenAt: createdAt,
	}, nil
}

// Rotating reports whether the session is in rotation.
func (s Session) Rotating() bool {
	return s.State == StateApprovedRotating
}

// ApproveSingle transitions the session onto one page. An empty pageID keeps
// the previously assigned page, or means "default page" if none was ever
// assigned. Leaving rotation clears all rotation fields.
func (s Session) ApproveSingle(pageID string) Session {
	pageID = strings.TrimSpace(pageID)
	if pageID != "" {
		s.AssignedPage = pageID
	}
	s.State = StateApprovedSingle
	return s.clearRotation()
}

// Block transitions the session to blocked content, clearing any rotation.
func (s Session) Block() Session {
	s.State = StateBlocked
	return s.clearRotation()
}

func (s Session) clearRotation() Session {
	s.RotationSet = nil
	s.RotationIntervalMs = 0
	s.CurrentPageIndex = 0
	return s
}
