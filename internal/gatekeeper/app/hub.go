package server

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/domain"
	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/gateway"
	"github.com/ayoluwanimi/admin-pan-main/internal/platform/errors"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxDecodeErrorsPerConn = 3
	maxFramesPerSecond     = 40

	wsWriteTimeout = 5 * time.Second

	frameTypeHello          = "session.hello"
	frameTypeSnapshot       = "session.snapshot"
	frameTypeDeleted        = "session.deleted"
	frameTypePing           = "session.ping"
	frameTypePong           = "session.pong"
	frameTypeError          = "session.error"
	frameTypeSessionList    = "sessions.list"
	frameTypeSessionChanged = "session.changed"
)

type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type helloPayload struct {
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent,omitempty"`
	Screen    string `json:"screen,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Languages string `json:"languages,omitempty"`
}

// snapshotPayload is the visitor-facing view of one session. Rotating
// sessions expose the set size and position, never the page ids in the set.
type snapshotPayload struct {
	SessionID          string `json:"session_id"`
	State              string `json:"state"`
	AssignedPage       string `json:"assigned_page,omitempty"`
	RotationPageCount  int    `json:"rotation_page_count,omitempty"`
	CurrentPageIndex   *int   `json:"current_page_index,omitempty"`
	RotationIntervalMs int    `json:"rotation_interval_ms,omitempty"`
	Revision           int64  `json:"revision"`
	ServerTime         string `json:"server_time"`
}

type deletedPayload struct {
	SessionID string `json:"session_id"`
}

type sessionListPayload struct {
	Sessions []sessionView `json:"sessions"`
}

func toSnapshotPayload(session domain.Session) snapshotPayload {
	payload := snapshotPayload{
		SessionID:  session.ID,
		State:      string(session.State),
		Revision:   session.Revision,
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	}
	switch session.State {
	case domain.StateApprovedSingle:
		payload.AssignedPage = session.AssignedPage
	case domain.StateApprovedRotating:
		index := session.CurrentPageIndex
		payload.RotationPageCount = len(session.RotationSet)
		payload.CurrentPageIndex = &index
		payload.RotationIntervalMs = session.RotationIntervalMs
	}
	return payload
}

type wsPeer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn)}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return p.encoder.Encode(frame)
}

func (p *wsPeer) close() {
	_ = p.conn.Close()
}

// pushHub tracks live push connections and fans committed session changes
// out to them. It is the gateway's event sink.
//
// Each session has at most one live visitor connection; a newer connection
// supersedes the previous one. Operator connections all receive every
// change.
type pushHub struct {
	mu        sync.Mutex
	visitors  map[string]*wsPeer
	operators map[*wsPeer]struct{}
}

func newPushHub() *pushHub {
	return &pushHub{
		visitors:  make(map[string]*wsPeer),
		operators: make(map[*wsPeer]struct{}),
	}
}

// attachVisitor registers peer as the live connection for sessionID,
// returning the superseded peer if one was attached.
func (h *pushHub) attachVisitor(sessionID string, peer *wsPeer) *wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous := h.visitors[sessionID]
	if previous == peer {
		return nil
	}
	h.visitors[sessionID] = peer
	return previous
}

// detachVisitor removes peer unless a newer connection already replaced it.
func (h *pushHub) detachVisitor(sessionID string, peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.visitors[sessionID] == peer {
		delete(h.visitors, sessionID)
	}
}

func (h *pushHub) attachOperator(peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.operators[peer] = struct{}{}
}

func (h *pushHub) detachOperator(peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.operators, peer)
}

func (h *pushHub) peersFor(sessionID string) (*wsPeer, []*wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	operators := make([]*wsPeer, 0, len(h.operators))
	for operator := range h.operators {
		operators = append(operators, operator)
	}
	return h.visitors[sessionID], operators
}

// SessionChanged pushes the committed session state to the session's live
// visitor connection and to every operator feed.
func (h *pushHub) SessionChanged(session domain.Session) {
	visitor, operators := h.peersFor(session.ID)

	if visitor != nil {
		frame := wsFrame{Type: frameTypeSnapshot, Payload: mustJSON(toSnapshotPayload(session))}
		if err := visitor.writeFrame(frame); err != nil {
			log.Printf("gatekeeper: push snapshot to session %q: %v", session.ID, err)
		}
	}

	operatorFrame := wsFrame{Type: frameTypeSessionChanged, Payload: mustJSON(toSessionView(session))}
	for _, operator := range operators {
		if err := operator.writeFrame(operatorFrame); err != nil {
			log.Printf("gatekeeper: push session change to operator: %v", err)
		}
	}
}

// SessionDeleted tells the session's live connection to tear down and
// removes it from the hub.
func (h *pushHub) SessionDeleted(sessionID string) {
	h.mu.Lock()
	visitor := h.visitors[sessionID]
	delete(h.visitors, sessionID)
	operators := make([]*wsPeer, 0, len(h.operators))
	for operator := range h.operators {
		operators = append(operators, operator)
	}
	h.mu.Unlock()

	frame := wsFrame{Type: frameTypeDeleted, Payload: mustJSON(deletedPayload{SessionID: sessionID})}
	if visitor != nil {
		_ = visitor.writeFrame(frame)
		visitor.close()
	}
	for _, operator := range operators {
		if err := operator.writeFrame(frame); err != nil {
			log.Printf("gatekeeper: push session delete to operator: %v", err)
		}
	}
}

// visitorCommands is the slice of the gateway a visitor link uses.
type visitorCommands interface {
	Register(ctx context.Context, sessionID string, meta domain.Metadata) (domain.Session, error)
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	Heartbeat(ctx context.Context, sessionID string) error
}

func visitorWSHandler(commands visitorCommands, hub *pushHub, heartbeat time.Duration) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		handleVisitorConn(conn, commands, hub, heartbeat)
	})
}

func handleVisitorConn(conn *websocket.Conn, commands visitorCommands, hub *pushHub, heartbeat time.Duration) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	decoder := json.NewDecoder(conn)
	peer := newWSPeer(conn)

	// The first frame must identify the session.
	_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
	var frame wsFrame
	if err := decoder.Decode(&frame); err != nil {
		return
	}
	if frame.Type != frameTypeHello {
		_ = writeWSError(peer, "INVALID_ARGUMENT", "first frame must be "+frameTypeHello)
		return
	}
	var hello helloPayload
	if err := json.Unmarshal(frame.Payload, &hello); err != nil {
		_ = writeWSError(peer, "INVALID_ARGUMENT", "invalid hello payload")
		return
	}

	session, err := commands.Register(ctx, hello.SessionID, domain.Metadata{
		UserAgent: strings.TrimSpace(hello.UserAgent),
		Screen:    strings.TrimSpace(hello.Screen),
		Timezone:  strings.TrimSpace(hello.Timezone),
		Languages: strings.TrimSpace(hello.Languages),
	})
	if err != nil {
		_ = writeWSError(peer, string(errors.CodeOf(err)), "session registration failed")
		return
	}
	sessionID := session.ID

	if previous := hub.attachVisitor(sessionID, peer); previous != nil {
		_ = writeWSError(previous, "SUPERSEDED", "another connection took over this session")
		previous.close()
	}
	defer hub.detachVisitor(sessionID, peer)

	// A command can commit between registration and attach, landing in
	// neither the push path nor the registration result. The snapshot is
	// re-read after attach so the link starts consistent; the client's
	// revision guard drops the older of this read and any pushed event.
	current, err := commands.Get(ctx, sessionID)
	if err != nil {
		_ = writeWSError(peer, string(errors.CodeOf(err)), "session is gone")
		return
	}
	if err := peer.writeFrame(wsFrame{Type: frameTypeSnapshot, Payload: mustJSON(toSnapshotPayload(current))}); err != nil {
		return
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		if err := decoder.Decode(&frame); err != nil {
			if isTimeout(err) {
				log.Printf("gatekeeper: session %q link silent past heartbeat deadline", sessionID)
				return
			}
			if goerrors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameTypePing:
			if err := commands.Heartbeat(ctx, sessionID); err != nil {
				_ = writeWSError(peer, string(errors.CodeOf(err)), "session is gone")
				return
			}
			_ = peer.writeFrame(wsFrame{Type: frameTypePong})
		case frameTypeHello:
			// Reconnect logic on the client may re-request its snapshot.
			current, err := commands.Get(ctx, sessionID)
			if err != nil {
				_ = writeWSError(peer, string(errors.CodeOf(err)), "session is gone")
				return
			}
			_ = peer.writeFrame(wsFrame{Type: frameTypeSnapshot, Payload: mustJSON(toSnapshotPayload(current))})
		default:
			_ = writeWSError(peer, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func operatorWSHandler(commands *gateway.Gateway, hub *pushHub, heartbeat time.Duration) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		handleOperatorConn(conn, commands, hub, heartbeat)
	})
}

func handleOperatorConn(conn *websocket.Conn, commands *gateway.Gateway, hub *pushHub, heartbeat time.Duration) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	decoder := json.NewDecoder(conn)
	peer := newWSPeer(conn)

	sessions, err := commands.List(ctx)
	if err != nil {
		_ = writeWSError(peer, string(errors.CodeOf(err)), "session listing unavailable")
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, toSessionView(session))
	}
	if err := peer.writeFrame(wsFrame{Type: frameTypeSessionList, Payload: mustJSON(sessionListPayload{Sessions: views})}); err != nil {
		return
	}

	hub.attachOperator(peer)
	defer hub.detachOperator(peer)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if isTimeout(err) {
				log.Printf("gatekeeper: operator link silent past heartbeat deadline")
				return
			}
			if goerrors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameTypePing:
			_ = peer.writeFrame(wsFrame{Type: frameTypePong})
		default:
			_ = writeWSError(peer, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return goerrors.As(err, &netErr) && netErr.Timeout()
}

func writeWSError(peer *wsPeer, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type: frameTypeError,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
