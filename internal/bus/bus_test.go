package bus

import (
	"testing"
	"time"
)

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("relay.", 10)
	defer unsub()

	b.Emit(KindRelayStatus, "CONNECTED")

	select {
	case evt := <-ch:
		if evt.Kind != KindRelayStatus {
			t.Errorf("got kind %q, want %q", evt.Kind, KindRelayStatus)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		if evt.Payload != "CONNECTED" {
			t.Errorf("payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Emit(KindInviteReceived, nil)
	b.Emit(KindMessageSent, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageSent {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageSent)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyNamespaceReceivesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Emit(KindSyncCompleted, nil)
	b.Emit(KindStateReset, nil)

	for _, want := range []string{KindSyncCompleted, KindStateReset} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	unsub()
	unsub()

	b.Emit(KindSyncCompleted, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBufferIsCounted(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 1)
	defer unsub()

	b.Emit("sync.one", nil)
	b.Emit("sync.two", nil)

	evt := <-ch
	if evt.Kind != "sync.one" {
		t.Errorf("got %q, want sync.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}
