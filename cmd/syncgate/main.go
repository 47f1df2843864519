// Package main starts the sync gateway and handles termination.
//
// The process is a transport adapter around change-event fanout so record
// state remains owned by the profiles and mentorship domains.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	syncgatecmd "github.com/campuslink/campuslink/internal/cmd/syncgate"
)

func main() {
	cfg, err := syncgatecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SYNCGATE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := syncgatecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
