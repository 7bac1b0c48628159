// Package server hosts the gatekeeper HTTP/WebSocket process.
//
// It exposes the visitor registration and sync surface, the operator command
// surface, and the page library CRUD. All session state changes flow through
// the command gateway so pushed events stay in revision order.
package server

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/gateway"
	store "github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage"
	sessionsqlite "github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/storage/sqlite"
	"github.com/ayoluwanimi/admin-pan-main/internal/pages"
	pagesqlite "github.com/ayoluwanimi/admin-pan-main/internal/pages/sqlite"
	"github.com/ayoluwanimi/admin-pan-main/internal/platform/errors"
	"github.com/ayoluwanimi/admin-pan-main/internal/platform/timeouts"
)

// Config defines the inputs for the gatekeeper transport boundary.
type Config struct {
	HTTPAddr          string
	SessionsDBPath    string
	PagesDBPath       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// StaleSessionAfter prunes sessions not seen for this long. Zero
	// disables the sweeper.
	StaleSessionAfter time.Duration
}

// Server hosts the gatekeeper HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	sessionStore    *sessionsqlite.Store
	pageStore       *pagesqlite.Store
	sweeperStop     context.CancelFunc
	sweeperDone     chan struct{}
}

type registerRequest struct {
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent,omitempty"`
	Screen    string `json:"screen,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Languages string `json:"languages,omitempty"`
}

type approveRequest struct {
	PageID string `json:"page_id,omitempty"`
}

type rotateRequest struct {
	PageIDs    []string `json:"page_ids"`
	IntervalMs int      `json:"interval_ms"`
}

type statusResponse struct {
	snapshotPayload
	PageName       string `json:"page_name,omitempty"`
	PageContent    string `json:"page_content,omitempty"`
	PollIntervalMs int    `json:"poll_interval_ms"`
}

type sessionView struct {
	SessionID          string   `json:"session_id"`
	State              string   `json:"state"`
	AssignedPage       string   `json:"assigned_page,omitempty"`
	RotationSet        []string `json:"rotation_set,omitempty"`
	RotationIntervalMs int      `json:"rotation_interval_ms,omitempty"`
	CurrentPageIndex   int      `json:"current_page_index"`
	Revision           int64    `json:"revision"`
	UserAgent          string   `json:"user_agent,omitempty"`
	Screen             string   `json:"screen,omitempty"`
	Timezone           string   `json:"timezone,omitempty"`
	Languages          string   `json:"languages,omitempty"`
	CreatedAt          string   `json:"created_at"`
	LastSeenAt         string   `json:"last_seen_at"`
}

type pageView struct {
	PageID    string `json:"page_id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type pageCreateRequest struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	IsDefault bool   `json:"is_default"`
}

type pageUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Content   *string `json:"content,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionView(session domain.Session) sessionView {
	return sessionView{
		SessionID:          session.ID,
		State:              string(session.State),
		AssignedPage:       session.AssignedPage,
		RotationSet:        session.RotationSet,
		RotationIntervalMs: session.RotationIntervalMs,
		CurrentPageIndex:   session.CurrentPageIndex,
		Revision:           session.Revision,
		UserAgent:          session.Metadata.UserAgent,
		Screen:             session.Metadata.Screen,
		Timezone:           session.Metadata.Timezone,
		Languages:          session.Metadata.Languages,
		CreatedAt:          session.CreatedAt.UTC().Format(time.RFC3339),
		LastSeenAt:         session.LastSeenAt.UTC().Format(time.RFC3339),
	}
}

func toPageView(page pages.Page) pageView {
	return pageView{
		PageID:    page.ID,
		Name:      page.Name,
		Content:   page.Content,
		IsDefault: page.IsDefault,
		CreatedAt: page.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: page.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewHandler creates gatekeeper routes over the provided collaborators,
// wiring the push hub into the gateway as its event sink.
func NewHandler(sessions store.SessionStore, pageStore pages.Store) http.Handler {
	hub := newPushHub()
	commands := gateway.New(sessions, pageStore, gateway.WithEventSink(hub))
	return newHandler(commands, pageStore, hub)
}

func newHandler(commands *gateway.Gateway, pageStore pages.Store, hub *pushHub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/sessions/register", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid register payload")
			return
		}
		session, err := commands.Register(r.Context(), req.SessionID, domain.Metadata{
			UserAgent: strings.TrimSpace(req.UserAgent),
			Screen:    strings.TrimSpace(req.Screen),
			Timezone:  strings.TrimSpace(req.Timezone),
			Languages: strings.TrimSpace(req.Languages),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotPayload(session))
	})

	mux.HandleFunc("GET /api/sessions/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		session, err := commands.Get(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := commands.Heartbeat(r.Context(), sessionID); err != nil {
			writeError(w, err)
			return
		}

		resp := statusResponse{
			snapshotPayload: toSnapshotPayload(session),
			PollIntervalMs:  int(timeouts.PollInterval / time.Millisecond),
		}
		if pageID, ok := currentPageID(session); ok {
			page, resolveErr := pageStore.ResolvePage(r.Context(), pageID)
			if resolveErr != nil {
				log.Printf("gatekeeper: resolve page %q for session %q: %v", pageID, session.ID, resolveErr)
			} else {
				resp.PageName = page.Name
				resp.PageContent = page.Content
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := commands.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]sessionView, 0, len(sessions))
		for _, session := range sessions {
			views = append(views, toSessionView(session))
		}
		writeJSON(w, http.StatusOK, views)
	})

	mux.HandleFunc("POST /api/sessions/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		var req approveRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			writeBadRequest(w, "invalid approve payload")
			return
		}
		session, err := commands.ApproveSingle(r.Context(), r.PathValue("id"), strings.TrimSpace(req.PageID))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(session))
	})

	mux.HandleFunc("POST /api/sessions/{id}/approve-rotating", func(w http.ResponseWriter, r *http.Request) {
		var req rotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid rotation payload")
			return
		}
		session, err := commands.ApproveRotating(r.Context(), r.PathValue("id"), req.PageIDs, req.IntervalMs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(session))
	})

	mux.HandleFunc("POST /api/sessions/{id}/rotation-next", func(w http.ResponseWriter, r *http.Request) {
		session, err := commands.Advance(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(session))
	})

	mux.HandleFunc("POST /api/sessions/{id}/rotation-stop", func(w http.ResponseWriter, r *http.Request) {
		session, err := commands.Stop(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(session))
	})

	mux.HandleFunc("POST /api/sessions/{id}/block", func(w http.ResponseWriter, r *http.Request) {
		session, err := commands.Block(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(session))
	})

	mux.HandleFunc("DELETE /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := commands.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/pages", func(w http.ResponseWriter, r *http.Request) {
		records, err := pageStore.ListPages(r.Context())
		if err != nil {
			writeError(w, mapPageError(err))
			return
		}
		views := make([]pageView, 0, len(records))
		for _, page := range records {
			views = append(views, toPageView(page))
		}
		writeJSON(w, http.StatusOK, views)
	})

	mux.HandleFunc("POST /api/pages", func(w http.ResponseWriter, r *http.Request) {
		var req pageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid page payload")
			return
		}
		page, err := pages.New(req.Name, req.Content, req.IsDefault, nil, nil)
		if err != nil {
			writeError(w, mapPageError(err))
			return
		}
		created, err := pageStore.CreatePage(r.Context(), page)
		if err != nil {
			writeError(w, mapPageError(err))
			return
		}
		writeJSON(w, http.StatusCreated, toPageView(created))
	})

	mux.HandleFunc("GET /api/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		page, err := pageStore.ResolvePage(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, mapPageError(err))
			return
		}
		writeJSON(w, http.StatusOK, toPageView(page))
	})

	mux.HandleFunc("PATCH /api/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req pageUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid page payload")
			return
		}
		page, err := pageStore.UpdatePage(r.Context(), r.PathValue("id"), pages.Update{
			Name:      req.Name,
			Content:   req.Content,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			writeError(w, mapPageError(err))
			return
		}
		writeJSON(w, http.StatusOK, toPageView(page))
	})

	mux.HandleFunc("DELETE /api/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := pageStore.DeletePage(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, mapPageError(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("GET /ws/visitor", visitorWSHandler(commands, hub, timeouts.PushHeartbeat))
	mux.Handle("GET /ws/operator", operatorWSHandler(commands, hub, timeouts.PushHeartbeat))

	return mux
}

// decodeOptionalBody decodes JSON into dest, treating an empty body as an
// empty request.
func decodeOptionalBody(r *http.Request, dest any) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil || goerrors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func currentPageID(session domain.Session) (string, bool) {
	switch session.State {
	case domain.StateApprovedSingle:
		return session.AssignedPage, true
	case domain.StateApprovedRotating:
		if session.CurrentPageIndex < len(session.RotationSet) {
			return session.RotationSet[session.CurrentPageIndex], true
		}
		return "", false
	default:
		return "", false
	}
}

func mapPageError(err error) error {
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, pages.ErrNotFound):
		return errors.Wrap(errors.CodePageNotFound, "page not found", err)
	case goerrors.Is(err, pages.ErrEmptyName):
		return errors.Wrap(errors.CodePageEmptyName, "page name is required", err)
	default:
		return errors.Wrap(errors.CodeUnknown, "page operation failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("gatekeeper: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorEnvelope{
		Error: errorBody{
			Code:    string(code),
			Message: err.Error(),
		},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{
			Code:    "INVALID_ARGUMENT",
			Message: message,
		},
	})
}

// NewServer builds a configured gatekeeper server, opening its stores.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, goerrors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	sessionStore, err := sessionsqlite.Open(config.SessionsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	pageStore, err := pagesqlite.Open(config.PagesDBPath)
	if err != nil {
		_ = sessionStore.Close()
		return nil, fmt.Errorf("open page store: %w", err)
	}

	hub := newPushHub()
	commands := gateway.New(sessionStore, pageStore, gateway.WithEventSink(hub))

	var sweeperStop context.CancelFunc
	var sweeperDone chan struct{}
	if config.StaleSessionAfter > 0 {
		sweeperStop, sweeperDone = startStaleSessionSweeper(commands, config.StaleSessionAfter)
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(commands, pageStore, hub),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		sessionStore:    sessionStore,
		pageStore:       pageStore,
		sweeperStop:     sweeperStop,
		sweeperDone:     sweeperDone,
	}, nil
}

// Run creates and serves a gatekeeper server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init gatekeeper server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve gatekeeper: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return goerrors.New("gatekeeper server is nil")
	}
	if ctx == nil {
		return goerrors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("gatekeeper server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if goerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.sweeperStop != nil {
		s.sweeperStop()
	}
	if s.sweeperDone != nil {
		<-s.sweeperDone
	}
	if s.pageStore != nil {
		if err := s.pageStore.Close(); err != nil {
			log.Printf("gatekeeper: close page store: %v", err)
		}
	}
	if s.sessionStore != nil {
		if err := s.sessionStore.Close(); err != nil {
			log.Printf("gatekeeper: close session store: %v", err)
		}
	}
}
