// Package event defines the signed envelope exchanged with the relay.
//
// An event's id is the sha256 of its canonical serialization
// [0, pubkey, created_at, kind, tags, content]; the signature covers the id.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/dialog/internal/identity"
)

// Kind tells relays and clients how to interpret an event.
type Kind int

const (
	KindKeyPackage   Kind = 443
	KindWelcome      Kind = 444
	KindGroupMessage Kind = 445
	KindGiftWrap     Kind = 1059
	KindChat         Kind = 9
)

func (k Kind) String() string {
	switch k {
	case KindKeyPackage:
		return "key_package"
	case KindWelcome:
		return "welcome"
	case KindGroupMessage:
		return "group_message"
	case KindGiftWrap:
		return "gift_wrap"
	case KindChat:
		return "chat"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ID is the hex-encoded event hash. It is the dedup key for everything
// downstream of the relay.
type ID string

func (id ID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

// Tag is a tag name followed by its values, e.g. ["h", "<group tag>"].
type Tag []string

// Signer produces signatures for a public key.
type Signer interface {
	PublicKey() identity.PublicKey
	Sign(msg []byte) []byte
}

// Event is a signed relay event. A rumor is an Event with an empty Sig.
type Event struct {
	ID        ID                 `json:"id"`
	PubKey    identity.PublicKey `json:"pubkey"`
	CreatedAt int64              `json:"created_at"`
	Kind      Kind               `json:"kind"`
	Tags      []Tag              `json:"tags"`
	Content   string             `json:"content"`
	Sig       string             `json:"sig"`
}

// New returns an unsigned event.
func New(kind Kind, createdAt time.Time, content string, tags ...Tag) *Event {
	if tags == nil {
		tags = []Tag{}
	}
	return &Event{
		CreatedAt: createdAt.Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
}

// Serialize returns the canonical form hashed into the id.
func (e *Event) Serialize() []byte {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode([]any{0, e.PubKey.String(), e.CreatedAt, int(e.Kind), tags, e.Content})
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// ComputeID hashes the canonical serialization.
func (e *Event) ComputeID() ID {
	sum := sha256.Sum256(e.Serialize())
	return ID(hex.EncodeToString(sum[:]))
}

// Seal sets the author and id without signing. Used for rumors.
func (e *Event) Seal(author identity.PublicKey) *Event {
	e.PubKey = author
	e.ID = e.ComputeID()
	e.Sig = ""
	return e
}

// Sign sets the author, id and signature.
func (e *Event) Sign(s Signer) *Event {
	e.PubKey = s.PublicKey()
	e.ID = e.ComputeID()
	raw, _ := hex.DecodeString(string(e.ID))
	e.Sig = hex.EncodeToString(s.Sign(raw))
	return e
}

// Verify checks that the id matches the content and that the signature
// was made by PubKey.
func (e *Event) Verify() error {
	if e.ComputeID() != e.ID {
		return errors.New("event id does not match content")
	}
	if e.Sig == "" {
		return errors.New("event is not signed")
	}
	sig, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	raw, _ := hex.DecodeString(string(e.ID))
	if !e.PubKey.Verify(raw, sig) {
		return errors.New("bad signature")
	}
	return nil
}

// TagValue returns the first value of the first tag with the given name.
func (e *Event) TagValue(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// TagValues returns the first value of every tag with the given name.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// Time returns CreatedAt as a time.Time.
func (e *Event) Time() time.Time { return time.Unix(e.CreatedAt, 0) }
