package server

import (
	"context"
	"log"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/gateway"
)

const sweepInterval = time.Minute

// startStaleSessionSweeper runs a background worker that deletes sessions
// not seen for longer than staleAfter. Deletions go through the gateway so
// connected clients get the same teardown event as an operator delete.
func startStaleSessionSweeper(commands *gateway.Gateway, staleAfter time.Duration) (context.CancelFunc, chan struct{}) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepStaleSessions(ctx, commands, staleAfter)
			}
		}
	}()

	return stop, done
}

func sweepStaleSessions(ctx context.Context, commands *gateway.Gateway, staleAfter time.Duration) {
	sessions, err := commands.List(ctx)
	if err != nil {
		log.Printf("gatekeeper: list sessions for sweep: %v", err)
		return
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	for _, session := range sessions {
		if !session.LastSeenAt.Before(cutoff) {
			continue
		}
		if err := commands.Delete(ctx, session.ID); err != nil {
			log.Printf("gatekeeper: sweep session %q: %v", session.ID, err)
			continue
		}
		log.Printf("gatekeeper: swept stale session %q last seen %s", session.ID, session.LastSeenAt.UTC().Format(time.RFC3339))
	}
}
