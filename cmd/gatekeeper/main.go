// Package main starts the gatekeeper service and handles termination.
//
// The process is a transport adapter around visitor session lifecycle and
// push synchronization; session state itself lives in the storage layer.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	gatekeepercmd "github.com/ayoluwanimi/admin-pan-main/internal/cmd/gatekeeper"
)

func main() {
	cfg, err := gatekeepercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[GATEKEEPER] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gatekeepercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
