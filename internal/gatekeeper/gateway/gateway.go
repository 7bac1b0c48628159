// Package gateway is the single command surface for mutating visitor
// sessions. Every state change flows through it so that committed revisions
// and the events pushed to connected clients stay in the same order.
package gateway

import (
	"context"
	goerrors "errors"
	"sync"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
	store "github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage"
	"github.com/ayoluwanimi/admin-pan-main/internal/pages"
	"github.com/ayoluwanimi/admin-pan-main/internal/platform/errors"
)

// EventSink receives committed session changes for push delivery. Calls for
// one session arrive in revision order and hold up later commands for that
// session, so implementations must bound their delivery time.
type EventSink interface {
	SessionChanged(session domain.Session)
	SessionDeleted(sessionID string)
}

// Gateway validates and serializes session commands.
//
// Commands against the same session are applied one at a time under a
// per-session lock that covers both the store mutation and the event
// publish. The store's revision compare-and-set remains as a guard against
// writers outside this process.
type Gateway struct {
	store store.SessionStore
	pages pages.Resolver
	sink  EventSink
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEventSink routes committed changes to sink.
func WithEventSink(sink EventSink) Option {
	return func(g *Gateway) { g.sink = sink }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway over the session store and page resolver.
func New(sessions store.SessionStore, resolver pages.Resolver, opts ...Option) *Gateway {
	g := &Gateway{
		store: sessions,
		pages: resolver,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// lockFor returns the command lock for one session id. Locks live until
// Delete removes the session, keeping the population bounded by live
// sessions.
func (g *Gateway) lockFor(sessionID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[sessionID] = lock
	}
	return lock
}

// dropLock discards the command lock for a deleted session. A command
// already blocked on the old mutex proceeds against the store, which
// reports the session as missing.
func (g *Gateway) dropLock(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, sessionID)
}

// Register records a visitor contact. Unknown ids create a pending session
// and announce it; known ids only refresh last-seen, leaving the revision
// untouched so clients do not observe a phantom change.
func (g *Gateway) Register(ctx context.Context, sessionID string, meta domain.Metadata) (domain.Session, error) {
	pending, err := domain.NewSession(sessionID, meta, g.now)
	if err != nil {
		return domain.Session{}, mapError(err)
	}

	lock := g.lockFor(pending.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := g.store.Get(ctx, pending.ID)
	if err == nil {
		seenAt := g.now().UTC()
		if touchErr := g.store.TouchLastSeen(ctx, existing.ID, seenAt); touchErr != nil {
			return domain.Session{}, mapError(touchErr)
		}
		existing.LastSeenAt = seenAt
		return existing, nil
	}
	if !goerrors.Is(err, store.ErrNotFound) {
		return domain.Session{}, mapError(err)
	}

	created, err := g.store.Create(ctx, pending)
	if err != nil {
		return domain.Session{}, mapError(err)
	}
	g.publishChanged(created)
	return created, nil
}

// Get returns the current session snapshot.
func (g *Gateway) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, mapError(err)
	}
	return session, nil
}

// List returns all sessions for the operator listing, newest first.
func (g *Gateway) List(ctx context.Context) ([]domain.Session, error) {
	sessions, err := g.store.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return sessions, nil
}

// Heartbeat refreshes the session's last-seen timestamp.
func (g *Gateway) Heartbeat(ctx context.Context, sessionID string) error {
	if err := g.store.TouchLastSeen(ctx, sessionID, g.now().UTC()); err != nil {
		return mapError(err)
	}
	return nil
}

// ApproveSingle approves the session onto one page. A non-empty pageID must
// resolve against the page library; an empty one defers to the previously
// assigned page or the library default.
func (g *Gateway) ApproveSingle(ctx context.Context, sessionID string, pageID string) (domain.Session, error) {
	if pageID != "" {
		if _, err := g.pages.ResolvePage(ctx, pageID); err != nil {
			return domain.Session{}, mapError(err)
		}
	}
	return g.mutate(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		return s.ApproveSingle(pageID), nil
	})
}

// ApproveRotating approves the session into rotation over pageIDs. Every
// page id must resolve before the transition commits.
func (g *Gateway) ApproveRotating(ctx context.Context, sessionID string, pageIDs []string, intervalMs int) (domain.Session, error) {
	if len(pageIDs) >= domain.MinRotationPages && len(pageIDs) <= domain.MaxRotationPages {
		for _, pageID := range pageIDs {
			if _, err := g.pages.ResolvePage(ctx, pageID); err != nil {
				return domain.Session{}, mapError(err)
			}
		}
	}
	return g.mutate(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		return s.StartRotation(pageIDs, intervalMs)
	})
}

// Block moves the session to blocked content.
func (g *Gateway) Block(ctx context.Context, sessionID string) (domain.Session, error) {
	return g.mutate(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		return s.Block(), nil
	})
}

// Advance steps the session's rotation forward by one page.
//
// A page removed from the library after the rotation was approved surfaces
// here: the advance onto it fails and the session stays on its current page.
func (g *Gateway) Advance(ctx context.Context, sessionID string) (domain.Session, error) {
	lock := g.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	current, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, mapError(err)
	}
	peek, err := current.Advance()
	if err != nil {
		return domain.Session{}, mapError(err)
	}
	if _, err := g.pages.ResolvePage(ctx, peek.RotationSet[peek.CurrentPageIndex]); err != nil {
		return domain.Session{}, mapError(err)
	}

	return g.mutateLocked(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		return s.Advance()
	})
}

// Stop ends rotation, freezing the session on its current page.
func (g *Gateway) Stop(ctx context.Context, sessionID string) (domain.Session, error) {
	return g.mutate(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		return s.StopRotation()
	})
}

// Delete removes the session and tells connected clients to tear down.
func (g *Gateway) Delete(ctx context.Context, sessionID string) error {
	lock := g.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := g.store.Delete(ctx, sessionID); err != nil {
		return mapError(err)
	}
	if g.sink != nil {
		g.sink.SessionDeleted(sessionID)
	}
	g.dropLock(sessionID)
	return nil
}

func (g *Gateway) mutate(ctx context.Context, sessionID string, transition store.Transition) (domain.Session, error) {
	lock := g.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return g.mutateLocked(ctx, sessionID, transition)
}

// mutateLocked commits a transition and publishes the result. The caller
// holds the session's command lock.
func (g *Gateway) mutateLocked(ctx context.Context, sessionID string, transition store.Transition) (domain.Session, error) {
	session, err := g.store.Mutate(ctx, sessionID, transition)
	if err != nil {
		return domain.Session{}, mapError(err)
	}
	g.publishChanged(session)
	return session, nil
}

func (g *Gateway) publishChanged(session domain.Session) {
	if g.sink != nil {
		g.sink.SessionChanged(session)
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, store.ErrNotFound):
		return errors.Wrap(errors.CodeSessionNotFound, "session not found", err)
	case goerrors.Is(err, store.ErrConflict):
		return errors.Wrap(errors.CodeSessionConflict, "session revision conflict", err)
	case goerrors.Is(err, domain.ErrEmptyID):
		return errors.Wrap(errors.CodeSessionEmptyID, "session id is required", err)
	case goerrors.Is(err, domain.ErrNotRotating):
		return errors.Wrap(errors.CodeSessionNotRotating, "session is not rotating", err)
	case goerrors.Is(err, domain.ErrAlreadyRotating):
		return errors.Wrap(errors.CodeSessionAlreadyRotating, "session is already rotating", err)
	case goerrors.Is(err, domain.ErrInvalidPageCount):
		return errors.Wrap(errors.CodeRotationInvalidPageCount, "rotation page count out of bounds", err)
	case goerrors.Is(err, domain.ErrInvalidInterval):
		return errors.Wrap(errors.CodeRotationInvalidInterval, "rotation interval out of bounds", err)
	case goerrors.Is(err, pages.ErrNotFound):
		return errors.Wrap(errors.CodePageNotFound, "page not found", err)
	case goerrors.Is(err, pages.ErrEmptyName):
		return errors.Wrap(errors.CodePageEmptyName, "page name is required", err)
	default:
		return errors.Wrap(errors.CodeUnknown, "session command failed", err)
	}
}
