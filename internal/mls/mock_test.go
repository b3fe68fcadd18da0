package mls

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/giftwrap"
	"github.com/matheus3301/dialog/internal/identity"
)

var now = time.Unix(1_700_000_000, 0)

func fixedNow() time.Time { return now }

type peer struct {
	id *identity.Identity
	ch *Mock
}

func newPeer(t *testing.T, statePath string) peer {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	ch, err := NewMock(id, MockOptions{StatePath: statePath, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	return peer{id: id, ch: ch}
}

// joinGroup has alice create a group with bob and bob accept it.
func joinGroup(t *testing.T, alice, bob peer) Group {
	t.Helper()
	ctx := context.Background()

	kp, err := bob.ch.CreateKeyPackage(ctx, []string{"ws://relay"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := alice.ch.CreateGroup(ctx, []*event.Event{kp}, []identity.PublicKey{alice.id.PublicKey()}, GroupConfig{Name: "pair"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Welcomes) != 1 || res.Welcomes[0].TagValue("p") != bob.id.PublicKey().String() {
		t.Fatalf("welcomes = %+v", res.Welcomes)
	}

	wrap, err := giftwrap.Wrap(alice.id, bob.id.PublicKey(), res.Welcomes[0], now)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := giftwrap.Unwrap(bob.id, wrap)
	if err != nil {
		t.Fatal(err)
	}
	if err := bob.ch.ProcessWelcome(ctx, wrap.ID, inner); err != nil {
		t.Fatal(err)
	}
	pending, err := bob.ch.PendingWelcomes(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if pending[0].GroupName != "pair" || pending[0].MemberCount != 2 || pending[0].Sender != alice.id.PublicKey() {
		t.Errorf("pending welcome = %+v", pending[0])
	}
	if err := bob.ch.AcceptWelcome(ctx, pending[0]); err != nil {
		t.Fatal(err)
	}
	return res.Group
}

func rumor(author *identity.Identity, text string) *event.Event {
	return event.New(event.KindChat, now, text).Seal(author.PublicKey())
}

func TestMockMessagesFlowBetweenMembers(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t, ""), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	ev, err := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "hello bob"))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != event.KindGroupMessage || ev.TagValue("h") != g.Tag {
		t.Fatalf("group event = %+v", ev)
	}
	if ev.PubKey == alice.id.PublicKey() {
		t.Error("group event should not be signed by the sender's identity")
	}

	res, err := bob.ch.ProcessMessage(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != ApplicationMessage || res.Message.Content != "hello bob" || res.Message.Sender != alice.id.PublicKey() {
		t.Errorf("result = %+v", res)
	}

	msgs, err := bob.ch.Messages(ctx, g.Handle)
	if err != nil || len(msgs) != 1 {
		t.Errorf("messages = %+v, %v", msgs, err)
	}
}

func TestMockCommitAdvancesEpoch(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t, ""), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	stale, err := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "old epoch"))
	if err != nil {
		t.Fatal(err)
	}
	commit, err := alice.ch.Commit(ctx, g.Handle)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []peer{alice, bob} {
		res, err := p.ch.ProcessMessage(ctx, commit)
		if err != nil || res.Kind != Commit {
			t.Fatalf("commit result = %+v, %v", res, err)
		}
	}

	groups, _ := bob.ch.Groups(ctx)
	if groups[0].Epoch != 1 {
		t.Errorf("epoch = %d, want 1", groups[0].Epoch)
	}

	_, err = bob.ch.ProcessMessage(ctx, stale)
	if !errs.Is(err, errs.Protocol) {
		t.Errorf("stale message err = %v, want protocol error", err)
	}

	fresh, err := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "new epoch"))
	if err != nil {
		t.Fatal(err)
	}
	if res, err := bob.ch.ProcessMessage(ctx, fresh); err != nil || res.Kind != ApplicationMessage {
		t.Errorf("fresh message = %+v, %v", res, err)
	}
}

func TestMockClassifiesControlEvents(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t, ""), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	proposal, err := alice.ch.Propose(ctx, g.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if res, err := bob.ch.ProcessMessage(ctx, proposal); err != nil || res.Kind != Proposal {
		t.Errorf("proposal = %+v, %v", res, err)
	}

	outsider := newPeer(t, "")
	if res, err := outsider.ch.ProcessMessage(ctx, proposal); err != nil || res.Kind != Unprocessable {
		t.Errorf("outsider = %+v, %v", res, err)
	}

	chat := event.New(event.KindChat, now, "plain").Sign(alice.id)
	if res, err := bob.ch.ProcessMessage(ctx, chat); err != nil || res.Kind != Unprocessable {
		t.Errorf("wrong kind = %+v, %v", res, err)
	}
}

func TestMockRejectsTamperedEvent(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t, ""), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	ev, _ := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "hi"))
	ev.Content = ev.Content[:len(ev.Content)-4] + "AAAA"
	if _, err := bob.ch.ProcessMessage(ctx, ev); !errs.Is(err, errs.Protocol) {
		t.Errorf("err = %v, want protocol error", err)
	}
}

func TestMockFailureInjection(t *testing.T) {
	ctx := context.Background()
	alice, bob := newPeer(t, ""), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	alice.ch.Fail(OpCreateMessage, errors.New("group unusable"))
	_, err := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "probe"))
	if !errs.Is(err, errs.Protocol) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	alice.ch.Fail(OpCreateMessage, nil)
	if _, err := alice.ch.CreateMessage(ctx, g.Handle, rumor(alice.id, "probe")); err != nil {
		t.Errorf("after clearing: %v", err)
	}
}

func TestMockAcceptUnknownWelcome(t *testing.T) {
	p := newPeer(t, "")
	err := p.ch.AcceptWelcome(context.Background(), Welcome{SourceEventID: "nope"})
	if !errs.Is(err, errs.Protocol) {
		t.Errorf("err = %v, want protocol error", err)
	}
}

func TestMockParseKeyPackage(t *testing.T) {
	ctx := context.Background()
	p := newPeer(t, "")
	kp, err := p.ch.CreateKeyPackage(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ch.ParseKeyPackage(ctx, kp); err != nil {
		t.Errorf("valid key package: %v", err)
	}

	kp.Content = "not hex"
	if err := p.ch.ParseKeyPackage(ctx, kp); !errs.Is(err, errs.Protocol) {
		t.Errorf("tampered key package err = %v", err)
	}
}

func TestMockStatePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mls.json")
	alice, bob := newPeer(t, path), newPeer(t, "")
	g := joinGroup(t, alice, bob)

	reopened, err := NewMock(alice.id, MockOptions{StatePath: path, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	groups, err := reopened.Groups(ctx)
	if err != nil || len(groups) != 1 {
		t.Fatalf("groups = %+v, %v", groups, err)
	}

	ev, err := bob.ch.CreateMessage(ctx, g.Handle, rumor(bob.id, "after restart"))
	if err != nil {
		t.Fatal(err)
	}
	if res, err := reopened.ProcessMessage(ctx, ev); err != nil || res.Kind != ApplicationMessage {
		t.Errorf("process after reopen = %+v, %v", res, err)
	}

	if err := reopened.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	again, _ := NewMock(alice.id, MockOptions{StatePath: path})
	if groups, _ := again.Groups(ctx); len(groups) != 0 {
		t.Errorf("groups after reset = %d", len(groups))
	}
}
