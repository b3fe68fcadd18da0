package mls

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
)

func startRemote(t *testing.T, ch Channel) *Remote {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(ch, zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewRemote(conn)
}

func TestRemoteMatchesMock(t *testing.T) {
	ctx := context.Background()
	alice := newPeer(t, "")
	bob := newPeer(t, "")
	remote := startRemote(t, bob.ch)

	kp, err := remote.CreateKeyPackage(ctx, []string{"ws://relay"})
	if err != nil {
		t.Fatal(err)
	}
	if kp.PubKey != bob.id.PublicKey() {
		t.Errorf("key package author = %s", kp.PubKey.Short())
	}
	if err := remote.ParseKeyPackage(ctx, kp); err != nil {
		t.Fatalf("ParseKeyPackage: %v", err)
	}

	res, err := alice.ch.CreateGroup(ctx, []*event.Event{kp}, []identity.PublicKey{alice.id.PublicKey()}, GroupConfig{Name: "remote"})
	if err != nil {
		t.Fatal(err)
	}
	welcome := res.Welcomes[0].Sign(alice.id)
	if err := remote.ProcessWelcome(ctx, "wrap-1", welcome); err != nil {
		t.Fatal(err)
	}
	pending, err := remote.PendingWelcomes(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if err := remote.AcceptWelcome(ctx, pending[0]); err != nil {
		t.Fatal(err)
	}

	groups, err := remote.Groups(ctx)
	if err != nil || len(groups) != 1 {
		t.Fatalf("groups = %+v, %v", groups, err)
	}
	if _, ok := FindGroup(groups, res.Group.Handle); !ok {
		t.Error("joined group not found by handle")
	}

	ev, err := alice.ch.CreateMessage(ctx, res.Group.Handle, rumor(alice.id, "over grpc"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := remote.ProcessMessage(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != ApplicationMessage || out.Message == nil || out.Message.Content != "over grpc" {
		t.Errorf("result = %+v", out)
	}

	msgs, err := remote.Messages(ctx, res.Group.Handle)
	if err != nil || len(msgs) != 1 {
		t.Errorf("messages = %+v, %v", msgs, err)
	}
}

func TestRemoteKeepsErrorKinds(t *testing.T) {
	ctx := context.Background()
	remote := startRemote(t, newPeer(t, "").ch)

	err := remote.AcceptWelcome(ctx, Welcome{SourceEventID: "missing"})
	if !errs.Is(err, errs.Protocol) {
		t.Errorf("err = %v, want protocol error", err)
	}
	if err := remote.Reset(ctx); err != nil {
		t.Errorf("Reset: %v", err)
	}
}

func TestRemoteUnavailableIsTransport(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	_ = lis.Close()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	_, err = NewRemote(conn).Groups(context.Background())
	if !errs.Is(err, errs.Transport) {
		t.Errorf("err = %v, want transport error", err)
	}
}
