// Package gatekeeper parses gatekeeper command flags and composes transport
// entrypoints.
package gatekeeper

import (
	"context"
	"flag"
	"fmt"
	"time"

	server "github.com/ayoluwanimi/admin-pan-main/internal/gatekeeper/app"
	entrypoint "github.com/ayoluwanimi/admin-pan-main/internal/platform/cmd"
)

// Config holds gatekeeper command configuration.
type Config struct {
	HTTPAddr          string        `env:"ADMIN_PAN_GATEKEEPER_HTTP_ADDR"           envDefault:":8080"`
	SessionsDBPath    string        `env:"ADMIN_PAN_GATEKEEPER_SESSIONS_DB_PATH"    envDefault:"gatekeeper-sessions.db"`
	PagesDBPath       string        `env:"ADMIN_PAN_GATEKEEPER_PAGES_DB_PATH"       envDefault:"gatekeeper-pages.db"`
	StaleSessionAfter time.Duration `env:"ADMIN_PAN_GATEKEEPER_STALE_SESSION_AFTER" envDefault:"0"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "gatekeeper HTTP listen address")
	fs.StringVar(&cfg.SessionsDBPath, "sessions-db-path", cfg.SessionsDBPath, "session SQLite database path")
	fs.StringVar(&cfg.PagesDBPath, "pages-db-path", cfg.PagesDBPath, "page SQLite database path")
	fs.DurationVar(&cfg.StaleSessionAfter, "stale-session-after", cfg.StaleSessionAfter, "prune sessions not seen for this long (0 disables)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the gatekeeper app and starts the session sync transport.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGatekeeper, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:          cfg.HTTPAddr,
			SessionsDBPath:    cfg.SessionsDBPath,
			PagesDBPath:       cfg.PagesDBPath,
			StaleSessionAfter: cfg.StaleSessionAfter,
		}); err != nil {
			return fmt.Errorf("serve gatekeeper: %w", err)
		}
		return nil
	})
}
