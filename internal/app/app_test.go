package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/dialog/internal/config"
	"github.com/matheus3301/dialog/internal/control"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/relay"
	"github.com/matheus3301/dialog/internal/session"
	"github.com/matheus3301/dialog/internal/status"
)

func testParams(t *testing.T) Params {
	t.Helper()
	t.Setenv("DIALOG_HOME", t.TempDir())

	rs := httptest.NewServer(relay.NewServer(zap.NewNop()))
	t.Cleanup(rs.Close)

	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Relay.URL = "ws" + strings.TrimPrefix(rs.URL, "http")
	cfg.Loop.FetchInterval = config.Duration{Duration: 50 * time.Millisecond}

	// Short path: unix socket paths are limited to about 104 bytes.
	dir, err := os.MkdirTemp("/tmp", "dialog-app-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return Params{
		Session:    "test",
		Identity:   id,
		Config:     cfg,
		Headless:   true,
		SocketPath: filepath.Join(dir, "control.sock"),
		LogLevel:   "warn",
	}
}

func dialControl(t *testing.T, socket string) *control.Client {
	t.Helper()
	c, conn, err := control.Dial(socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func TestRunHeadless(t *testing.T) {
	p := testParams(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, p) }()

	c := dialControl(t, p.SocketPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		callCtx, callCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		st, err := c.Status(callCtx)
		callCancel()
		if err == nil && st.GetFields()["relay_status"].GetStringValue() == string(status.Connected) {
			if got := st.GetFields()["identity"].GetStringValue(); got != p.Identity.PublicKey().String() {
				t.Errorf("identity = %q", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("client never reported connected: %v %v", st, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := c.Poll(context.Background()); err != nil {
		t.Errorf("Poll = %v", err)
	}

	if _, err := os.Stat(session.DBPath(p.Identity.PublicKey())); err != nil {
		t.Errorf("database not created: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, err := os.Stat(p.SocketPath); !os.IsNotExist(err) {
		t.Errorf("control socket left behind: %v", err)
	}
}

func TestRunRefusesLockedIdentity(t *testing.T) {
	p := testParams(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, p) }()
	defer func() {
		cancel()
		<-done
	}()

	// wait for the first client to hold the lock
	c := dialControl(t, p.SocketPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		callCtx, callCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		_, err := c.Status(callCtx)
		callCancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first client never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	second := p
	second.SocketPath = filepath.Join(filepath.Dir(p.SocketPath), "second.sock")
	err := Run(context.Background(), second)
	if err == nil || !strings.Contains(err.Error(), "identity in use") {
		t.Fatalf("second Run = %v, want lock error", err)
	}
}

type postRecorder []model.Msg

func (p *postRecorder) Post(msg model.Msg) { *p = append(*p, msg) }

func TestLogTapForwardsWarnings(t *testing.T) {
	tap := &logTap{}
	tap.hook(zapcore.Entry{Level: zapcore.WarnLevel, Message: "before attach"})

	rec := &postRecorder{}
	tap.attach(rec)
	tap.hook(zapcore.Entry{Level: zapcore.InfoLevel, Message: "quiet"})
	tap.hook(zapcore.Entry{Level: zapcore.ErrorLevel, LoggerName: "executor", Message: "already posted"})
	tap.hook(zapcore.Entry{Level: zapcore.ErrorLevel, LoggerName: "sync", Message: "fetch failed"})

	if len(*rec) != 1 {
		t.Fatalf("posted %d msgs, want 1: %#v", len(*rec), *rec)
	}
	lm, ok := (*rec)[0].(model.LogMessage)
	if !ok {
		t.Fatalf("posted %T", (*rec)[0])
	}
	if lm.Entry.Level != model.LevelError || lm.Entry.Text != "sync: fetch failed" {
		t.Errorf("entry = %+v", lm.Entry)
	}
}
