package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/logging"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	socketPath := flag.String("socket", "", "unix socket to serve on")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *socketPath == "" {
		fmt.Fprintln(os.Stderr, "usage: dialogmls [--session <name>] --socket <path>")
		os.Exit(1)
	}

	logger := logging.NewConsole("mls")
	defer func() { _ = logger.Sync() }()

	id, _, err := session.LoadIdentity(sessionName, os.Getenv)
	if err != nil {
		logger.Fatal("load identity", zap.Error(err))
	}
	if err := session.EnsureDir(id.PublicKey()); err != nil {
		logger.Fatal("create identity dir", zap.Error(err))
	}
	ch, err := mls.NewMock(id, mls.MockOptions{
		StatePath: filepath.Join(session.IdentityDir(id.PublicKey()), "mls-sidecar.json"),
	})
	if err != nil {
		logger.Fatal("open group state", zap.Error(err))
	}

	_ = os.Remove(*socketPath)
	lis, err := net.Listen("unix", *socketPath)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	if err := os.Chmod(*socketPath, 0600); err != nil {
		logger.Fatal("chmod socket", zap.Error(err))
	}

	srv := mls.NewServer(ch, logger)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		srv.GracefulStop()
	}()

	logger.Info("group channel sidecar serving", zap.String("socket", *socketPath), zap.String("identity", id.PublicKey().Short()))
	if err := srv.Serve(lis); err != nil {
		logger.Error("serve", zap.Error(err))
	}
	_ = os.Remove(*socketPath)
}
