package loop

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/dialog/internal/bus"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
)

// scripted answers each command type with fixed Msgs and records what ran.
type scripted struct {
	mu      sync.Mutex
	replies map[string][]model.Msg
	ran     []string
}

func (s *scripted) Execute(_ context.Context, cmd model.Cmd) []model.Msg {
	name := fmt.Sprintf("%T", cmd)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, name)
	return s.replies[name]
}

func (s *scripted) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ran...)
}

func initial() model.State {
	s := model.New(identity.PublicKey{1})
	s.Conversations = []model.Conversation{{ID: "c1", GroupHandle: model.GroupHandle{1}, Name: "one"}}
	return s
}

func runLoop(t *testing.T, l *Loop) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Post(model.Quit{})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("loop did not stop")
		}
	})
	return done
}

func TestMailboxFIFO(t *testing.T) {
	m := NewMailbox()
	for i := range 3 {
		m.Post(model.SelectInvite{Index: i})
	}
	if m.Len() != 3 {
		t.Fatalf("Len = %d", m.Len())
	}
	for i := range 3 {
		msg, err := m.Receive(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got := msg.(model.SelectInvite).Index; got != i {
			t.Errorf("received %d, want %d", got, i)
		}
	}
}

func TestMailboxReceiveWaits(t *testing.T) {
	m := NewMailbox()
	got := make(chan model.Msg, 1)
	go func() {
		msg, _ := m.Receive(context.Background())
		got <- msg
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before Post")
	case <-time.After(20 * time.Millisecond):
	}
	m.Post(model.Quit{})
	select {
	case msg := <-got:
		if _, ok := msg.(model.Quit); !ok {
			t.Errorf("got %T", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Receive(ctx); err == nil {
		t.Error("Receive on cancelled context returned no error")
	}
}

func TestFollowUpsRunDepthFirst(t *testing.T) {
	exec := &scripted{replies: map[string][]model.Msg{
		"model.FetchPendingInvites": {model.MessageReceived{Message: model.ChatMessage{
			ID: "e1", ConversationID: "c1", Content: "hi", Timestamp: time.Unix(10, 0),
		}}},
	}}
	l := New(Options{Executor: exec, Initial: initial(), TickInterval: time.Hour, FetchInterval: time.Hour})

	snapshots := make(chan model.State, 16)
	l.Observe(func(s model.State) { snapshots <- s })
	runLoop(t, l)
	<-snapshots // after Init

	l.Post(model.PollRelay{IncludeInvites: true})
	var s model.State
	select {
	case s = <-snapshots:
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}

	want := []string{"model.FetchPendingInvites", "model.SaveMessage", "model.SaveConversation", "model.FetchNewMessages"}
	got := exec.commands()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if len(s.Messages["c1"]) != 1 || s.Conversations[0].UnreadCount != 1 {
		t.Errorf("snapshot messages = %v, unread = %d", s.Messages["c1"], s.Conversations[0].UnreadCount)
	}
	if l.Snapshot().Conversations[0].UnreadCount != 1 {
		t.Error("Snapshot not updated")
	}
}

func TestInitRunsFirst(t *testing.T) {
	exec := &scripted{replies: map[string][]model.Msg{
		"model.Rehydrate": {model.Rehydrated{Contacts: []model.Contact{{ID: "a", DisplayName: "alice"}}}},
	}}
	l := New(Options{
		Executor:     exec,
		Initial:      initial(),
		Init:         model.Batch{model.Rehydrate{}, model.ConnectRelay{}},
		TickInterval: time.Hour, FetchInterval: time.Hour,
	})
	ready := make(chan model.State, 4)
	l.Observe(func(s model.State) { ready <- s })
	runLoop(t, l)

	select {
	case s := <-ready:
		if len(s.Contacts) != 1 {
			t.Errorf("contacts = %+v", s.Contacts)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after init")
	}
	if got := exec.commands(); len(got) != 2 || got[1] != "model.ConnectRelay" {
		t.Errorf("commands = %v", got)
	}
}

func TestQuitEndsRun(t *testing.T) {
	exec := &scripted{}
	l := New(Options{Executor: exec, Initial: initial(), TickInterval: time.Hour, FetchInterval: time.Hour})
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	l.Post(model.KeyPressed{Key: model.Key{Code: model.KeyCtrlQ}})
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
}

func TestCancelEndsRun(t *testing.T) {
	l := New(Options{Executor: &scripted{}, Initial: initial(), TickInterval: time.Hour, FetchInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestTimersPostTicksAndPolls(t *testing.T) {
	exec := &scripted{}
	l := New(Options{
		Executor:        exec,
		Initial:         initial(),
		TickInterval:    5 * time.Millisecond,
		FetchInterval:   5 * time.Millisecond,
		InvitePollEvery: 2,
	})
	ticked := make(chan struct{}, 1)
	l.Observe(func(s model.State) {
		if !s.Now.IsZero() {
			select {
			case ticked <- struct{}{}:
			default:
			}
		}
	})
	runLoop(t, l)

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("no Tick reached the state")
	}

	deadline := time.After(2 * time.Second)
	for {
		var invites, messages bool
		for _, c := range exec.commands() {
			invites = invites || c == "model.FetchPendingInvites"
			messages = messages || c == "model.FetchNewMessages"
		}
		if invites && messages {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("commands = %v", exec.commands())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRelayStatusForwarded(t *testing.T) {
	b := bus.New()
	l := New(Options{Executor: &scripted{}, Initial: initial(), Bus: b, TickInterval: time.Hour, FetchInterval: time.Hour})
	connected := make(chan struct{}, 1)
	l.Observe(func(s model.State) {
		if s.Relay == status.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	runLoop(t, l)

	m := status.NewMachine(b)
	// the subscription starts with Run; retry until it is in place
	deadline := time.After(2 * time.Second)
	for {
		_ = m.Ensure(status.Connecting)
		_ = m.Ensure(status.Connected)
		select {
		case <-connected:
			return
		case <-time.After(20 * time.Millisecond):
			_ = m.Ensure(status.Disconnected)
		case <-deadline:
			t.Fatal("relay status never reached the state")
		}
	}
}
