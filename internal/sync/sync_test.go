package sync

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/mls"
	"github.com/matheus3301/dialog/internal/relay"
	"github.com/matheus3301/dialog/internal/store"
)

type harness struct {
	alice, bob   *identity.Identity
	aliceCh      *mls.Mock
	bobCh        *mls.Mock
	relay        *relay.Server
	client       *relay.Client
	db           *store.DB
	dbPath       string
	group        mls.Group
	synchronizer *Synchronizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{}
	var err error
	if h.alice, err = identity.Generate(); err != nil {
		t.Fatal(err)
	}
	if h.bob, err = identity.Generate(); err != nil {
		t.Fatal(err)
	}
	h.aliceCh, _ = mls.NewMock(h.alice, mls.MockOptions{})
	h.bobCh, _ = mls.NewMock(h.bob, mls.MockOptions{})

	kp, err := h.bobCh.CreateKeyPackage(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.aliceCh.CreateGroup(ctx, []*event.Event{kp}, nil, mls.GroupConfig{Name: "pair"})
	if err != nil {
		t.Fatal(err)
	}
	welcome := res.Welcomes[0].Sign(h.alice)
	if err := h.bobCh.ProcessWelcome(ctx, welcome.ID, welcome); err != nil {
		t.Fatal(err)
	}
	pending, _ := h.bobCh.PendingWelcomes(ctx)
	if err := h.bobCh.AcceptWelcome(ctx, pending[0]); err != nil {
		t.Fatal(err)
	}
	h.group = res.Group

	h.relay = relay.NewServer(nil)
	srv := httptest.NewServer(h.relay)
	t.Cleanup(srv.Close)
	h.client = relay.New(relay.Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), FetchTimeout: time.Second})
	t.Cleanup(func() { _ = h.client.Close() })

	h.dbPath = filepath.Join(t.TempDir(), "dialog.db")
	h.db = h.openDB(t)
	h.synchronizer = h.newSynchronizer(t, h.db)
	return h
}

func (h *harness) openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(h.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (h *harness) newSynchronizer(t *testing.T, db *store.DB) *Synchronizer {
	t.Helper()
	dedup, err := NewDedup(db)
	if err != nil {
		t.Fatal(err)
	}
	return New(h.bobCh, h.client, dedup, NewReconciler(db, nil), Options{
		Self: h.bob.PublicKey(),
		Now:  func() time.Time { return time.Unix(5000, 0) },
	})
}

// post has alice send text at the given second.
func (h *harness) post(t *testing.T, text string, at int64) *event.Event {
	t.Helper()
	rumor := event.New(event.KindChat, time.Unix(at, 0), text).Seal(h.alice.PublicKey())
	ev, err := h.aliceCh.CreateMessage(context.Background(), h.group.Handle, rumor)
	if err != nil {
		t.Fatal(err)
	}
	if ok, reason := h.relay.Publish(ev); !ok {
		t.Fatal(reason)
	}
	return ev
}

func TestSyncGroupOrdersByCreatedAt(t *testing.T) {
	h := newHarness(t)
	h.post(t, "second", 200)
	h.post(t, "first", 100)

	res, err := h.synchronizer.SyncGroup(context.Background(), h.group)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 2 || res.Messages[0].Content != "first" || res.Messages[1].Content != "second" {
		t.Fatalf("messages = %+v", res.Messages)
	}
	m := res.Messages[0]
	if m.IsOwn || m.Sender != h.alice.PublicKey() || m.ConversationID != h.group.Handle.ConversationID() {
		t.Errorf("message = %+v", m)
	}
	if res.Counts.Application != 2 || len(res.Processed) != 2 {
		t.Errorf("counts = %+v, processed = %d", res.Counts, len(res.Processed))
	}
}

func TestSyncGroupIsIdempotent(t *testing.T) {
	h := newHarness(t)
	e1 := h.post(t, "once", 100)

	first, err := h.synchronizer.SyncGroup(context.Background(), h.group)
	if err != nil || len(first.Messages) != 1 {
		t.Fatalf("first sync = %+v, %v", first, err)
	}
	second, err := h.synchronizer.SyncGroup(context.Background(), h.group)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Messages) != 0 || len(second.Processed) != 0 || second.Counts.Skipped != 1 {
		t.Errorf("second sync = %+v", second)
	}

	// a fresh process sees the durable marks
	restarted := h.newSynchronizer(t, h.openDB(t))
	if !restarted.Dedup().Seen(e1.ID) {
		t.Error("processed mark lost across restart")
	}
	third, err := restarted.SyncGroup(context.Background(), h.group)
	if err != nil || len(third.Messages) != 0 {
		t.Errorf("sync after restart = %+v, %v", third, err)
	}
}

func TestSyncGroupCountsCommitsAndCollectsErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	commit, err := h.aliceCh.Commit(ctx, h.group.Handle)
	if err != nil {
		t.Fatal(err)
	}
	commit.CreatedAt = 50
	commit.Sign(identityFor(t))
	h.relay.Publish(commit)

	// still at the old epoch when processed after the commit
	h.post(t, "stale", 100)

	res, err := h.synchronizer.SyncGroup(ctx, h.group)
	if err != nil {
		t.Fatal(err)
	}
	if res.Counts.Commits != 1 || res.Counts.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("counts = %+v, errors = %v", res.Counts, res.Errors)
	}
	if !errs.Is(res.Errors[0], errs.Protocol) {
		t.Errorf("error = %v, want protocol", res.Errors[0])
	}
	if len(res.Processed) != 2 {
		t.Errorf("processed = %d, want both marked", len(res.Processed))
	}
}

func TestSyncGroupWritesCheckpoint(t *testing.T) {
	h := newHarness(t)
	if _, err := h.synchronizer.SyncGroup(context.Background(), h.group); err != nil {
		t.Fatal(err)
	}
	recon := NewReconciler(h.db, nil)
	got, err := recon.LastGroupSync(h.group.Tag)
	if err != nil || got.Unix() != 5000 {
		t.Errorf("LastGroupSync = %v, %v", got, err)
	}
	latest, err := recon.LastSync()
	if err != nil || !latest.Equal(got) {
		t.Errorf("LastSync = %v, %v", latest, err)
	}
}

func TestSyncGroupFetchFailureIsTransport(t *testing.T) {
	h := newHarness(t)
	dead := relay.New(relay.Options{URL: "ws://127.0.0.1:1", FetchTimeout: 200 * time.Millisecond})
	s := New(h.bobCh, dead, h.synchronizer.Dedup(), NewReconciler(h.db, nil), Options{Self: h.bob.PublicKey()})
	_, err := s.SyncGroup(context.Background(), h.group)
	if !errs.Is(err, errs.Transport) {
		t.Errorf("err = %v, want transport error", err)
	}
}

// fixedFetcher returns the same events for every filter, standing in for
// a relay that serves whatever it likes.
type fixedFetcher []*event.Event

func (f fixedFetcher) Fetch(context.Context, event.Filter, time.Duration) ([]*event.Event, error) {
	return f, nil
}

func TestSyncGroupDropsForgedEvents(t *testing.T) {
	h := newHarness(t)
	genuine := h.post(t, "real", 100)
	forged := *genuine
	forged.Content = "tampered"

	dedup := h.synchronizer.Dedup()
	s := New(h.bobCh, fixedFetcher{&forged, genuine}, dedup, NewReconciler(h.db, nil), Options{Self: h.bob.PublicKey()})
	res, err := s.SyncGroup(context.Background(), h.group)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content != "real" {
		t.Fatalf("messages = %+v", res.Messages)
	}
	if len(res.Processed) != 1 || res.Processed[0] != genuine.ID {
		t.Errorf("processed = %v", res.Processed)
	}
	if res.Counts.Failed != 1 || len(res.Errors) != 1 || !errs.Is(res.Errors[0], errs.Protocol) {
		t.Errorf("counts = %+v, errors = %v", res.Counts, res.Errors)
	}
}

func identityFor(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return id
}
