package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/status"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startRelay(t *testing.T) (*Server, string) {
	t.Helper()
	relay := NewServer(nil)
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return relay, wsURL(srv)
}

func newClient(t *testing.T, url string, m *status.Machine) *Client {
	t.Helper()
	c := New(Options{URL: url, FetchTimeout: time.Second, SendTimeout: time.Second, Status: m})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func signed(t *testing.T, kind event.Kind, at int64, content string, tags ...event.Tag) *event.Event {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return event.New(kind, time.Unix(at, 0), content, tags...).Sign(id)
}

func TestSendAndFetch(t *testing.T) {
	relay, url := startRelay(t)
	c := newClient(t, url, nil)
	ctx := context.Background()

	late := signed(t, event.KindGroupMessage, 200, "late", event.Tag{"h", "g1"})
	early := signed(t, event.KindGroupMessage, 100, "early", event.Tag{"h", "g1"})
	other := signed(t, event.KindGroupMessage, 150, "other", event.Tag{"h", "g2"})
	for _, ev := range []*event.Event{late, early, other} {
		if err := c.Send(ctx, ev); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := c.Send(ctx, early); err != nil {
		t.Fatalf("duplicate Send: %v", err)
	}
	if relay.Len() != 3 {
		t.Errorf("stored = %d, want 3", relay.Len())
	}

	f := event.Filter{Kinds: []event.Kind{event.KindGroupMessage}}.WithTag("h", "g1")
	got, err := c.Fetch(ctx, f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
		t.Errorf("fetched %d events, want early then late", len(got))
	}

	none, err := c.Fetch(ctx, event.Filter{Kinds: []event.Kind{event.KindWelcome}}, 0)
	if err != nil || len(none) != 0 {
		t.Errorf("fetch welcomes = %d, %v", len(none), err)
	}
}

func TestSendRejectedIsTransportError(t *testing.T) {
	_, url := startRelay(t)
	c := newClient(t, url, nil)

	id, _ := identity.Generate()
	rumor := event.New(event.KindChat, time.Unix(1, 0), "unsigned").Seal(id.PublicKey())
	err := c.Send(context.Background(), rumor)
	if !errs.Is(err, errs.Transport) || !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want rejected transport error", err)
	}

	// the connection survives a rejection
	if err := c.Send(context.Background(), signed(t, event.KindChat, 1, "ok")); err != nil {
		t.Errorf("Send after rejection: %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{}
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer silent.Close()

	m := status.NewMachine(nil)
	c := newClient(t, wsURL(silent), m)
	start := time.Now()
	_, err := c.Fetch(context.Background(), event.Filter{}, 100*time.Millisecond)
	if !errs.Is(err, errs.Transport) {
		t.Fatalf("err = %v, want transport error", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("fetch did not honour its timeout")
	}
	if m.Current() != status.Error {
		t.Errorf("status = %s, want ERROR", m.Current())
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	m := status.NewMachine(nil)
	c := newClient(t, url, m)
	err := c.Send(context.Background(), signed(t, event.KindChat, 1, "x"))
	if !errs.Is(err, errs.Transport) {
		t.Errorf("err = %v, want transport error", err)
	}
	if m.Current() != status.Error {
		t.Errorf("status = %s, want ERROR", m.Current())
	}
}

func TestStatusPublishedOnBus(t *testing.T) {
	_, url := startRelay(t)
	b := bus.New()
	ch, unsub := b.Subscribe("relay.", 10)
	defer unsub()

	c := newClient(t, url, status.NewMachine(b))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	want := []status.State{status.Connecting, status.Connected, status.Connecting, status.Connected, status.Disconnected}
	for _, w := range want {
		select {
		case evt := <-ch:
			if got := evt.Payload.(status.StatusChange).To; got != w {
				t.Errorf("transition to %s, want %s", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", w)
		}
	}
}

func TestQueryLimitKeepsNewest(t *testing.T) {
	relay := NewServer(nil)
	for i := int64(1); i <= 5; i++ {
		if ok, reason := relay.Publish(signed(t, event.KindKeyPackage, i, "kp")); !ok {
			t.Fatal(reason)
		}
	}
	got := relay.Query(event.Filter{Kinds: []event.Kind{event.KindKeyPackage}, Limit: 2})
	if len(got) != 2 || got[0].CreatedAt != 4 || got[1].CreatedAt != 5 {
		t.Errorf("query = %+v", got)
	}
}

func TestDecodeFrames(t *testing.T) {
	f, err := decode([]byte(`["OK","abc",false,"invalid: bad sig"]`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Label != labelOK || f.EventID != "abc" || f.Accepted || f.Message != "invalid: bad sig" {
		t.Errorf("frame = %+v", f)
	}

	f, err = decode([]byte(`["REQ","s1",{"kinds":[445],"#h":["t"]}]`))
	if err != nil {
		t.Fatal(err)
	}
	if f.SubID != "s1" || len(f.Filters) != 1 || f.Filters[0].Tags["h"][0] != "t" {
		t.Errorf("frame = %+v", f)
	}

	if _, err := decode([]byte(`["PING"]`)); err == nil {
		t.Error("unknown label decoded")
	}
}
