package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/matheus3301/dialog/internal/identity"
)

func testSigner(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSignAndVerify(t *testing.T) {
	signer := testSigner(t)
	ev := New(KindGroupMessage, time.Unix(1000, 0), "ciphertext", Tag{"h", "abcd"}).Sign(signer)

	if ev.ID == "" || ev.Sig == "" {
		t.Fatal("Sign left id or sig empty")
	}
	if ev.PubKey != signer.PublicKey() {
		t.Error("pubkey not set to signer")
	}
	if err := ev.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	ev.Content = "tampered"
	if err := ev.Verify(); err == nil {
		t.Error("Verify accepted tampered content")
	}
}

func TestIDIsDeterministic(t *testing.T) {
	signer := testSigner(t)
	a := New(KindChat, time.Unix(50, 0), "<b>&</b>").Seal(signer.PublicKey())
	b := New(KindChat, time.Unix(50, 0), "<b>&</b>").Seal(signer.PublicKey())
	if a.ID != b.ID {
		t.Errorf("ids differ: %s vs %s", a.ID, b.ID)
	}
	c := New(KindChat, time.Unix(51, 0), "<b>&</b>").Seal(signer.PublicKey())
	if a.ID == c.ID {
		t.Error("different created_at produced same id")
	}
}

func TestJSONRoundTripKeepsID(t *testing.T) {
	signer := testSigner(t)
	ev := New(KindGiftWrap, time.Unix(10, 0), "x", Tag{"p", signer.PublicKey().String()}).Sign(signer)

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if err := got.Verify(); err != nil {
		t.Errorf("decoded event does not verify: %v", err)
	}
	if got.TagValue("p") != signer.PublicKey().String() {
		t.Errorf("p tag = %q", got.TagValue("p"))
	}
}

func TestFilterMatches(t *testing.T) {
	signer := testSigner(t)
	other := testSigner(t)
	ev := New(KindGroupMessage, time.Unix(100, 0), "x", Tag{"h", "g1"}).Sign(signer)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"kind match", Filter{Kinds: []Kind{KindGroupMessage}}, true},
		{"kind miss", Filter{Kinds: []Kind{KindWelcome}}, false},
		{"author match", Filter{Authors: []identity.PublicKey{signer.PublicKey()}}, true},
		{"author miss", Filter{Authors: []identity.PublicKey{other.PublicKey()}}, false},
		{"tag match", Filter{}.WithTag("h", "g0", "g1"), true},
		{"tag miss", Filter{}.WithTag("h", "g2"), false},
		{"since", Filter{Since: 101}, false},
		{"until", Filter{Until: 99}, false},
		{"id", Filter{IDs: []ID{ev.ID}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(ev); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterWireForm(t *testing.T) {
	f := Filter{Kinds: []Kind{KindGiftWrap}, Limit: 5}.WithTag("p", "abc")
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["#p"]; !ok {
		t.Errorf("wire form %s lacks #p", data)
	}

	var back Filter
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Tags["p"]) != 1 || back.Tags["p"][0] != "abc" || back.Limit != 5 {
		t.Errorf("decoded filter = %+v", back)
	}
}
