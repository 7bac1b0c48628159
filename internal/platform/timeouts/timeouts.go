// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between transport boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// PushHeartbeat is the silence window on a visitor push link. A link that
// sends no frame (not even a ping) within this window is closed so the
// client falls back to polling instead of holding a half-open socket.
const PushHeartbeat = 30 * time.Second

// PollInterval is the cadence visitor clients use between pull requests
// while no push link is open.
const PollInterval = 3 * time.Second
