package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/dialog/internal/app"
	"github.com/matheus3301/dialog/internal/config"
	"github.com/matheus3301/dialog/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	headless := flag.Bool("headless", false, "run without the terminal UI, logging to stderr")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Resolve(session.ConfigPath(), os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	id, created, err := session.LoadIdentity(sessionName, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Fprintf(os.Stderr, "created identity %s for session %q\n", id.PublicKey(), sessionName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, app.Params{
		Session:  sessionName,
		Identity: id,
		Config:   cfg,
		Headless: *headless,
		LogLevel: *logLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
