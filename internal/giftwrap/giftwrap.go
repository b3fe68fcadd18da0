// Package giftwrap delivers an event privately to a single recipient.
//
// The inner event is signed by the real sender and sealed with
// XChaCha20-Poly1305 under a key agreed between a throwaway Ed25519 key and
// the recipient's identity key (both mapped to X25519). The outer event is
// signed by the throwaway key and tagged only with the recipient.
package giftwrap

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
)

const info = "dialog/giftwrap/v1"

// ErrNotForUs is returned when the wrap is addressed to another key.
var ErrNotForUs = errors.New("gift wrap is addressed to another recipient")

// Wrap signs inner as sender and seals it for recipient.
func Wrap(sender event.Signer, recipient identity.PublicKey, inner *event.Event, now time.Time) (*event.Event, error) {
	inner.Sign(sender)
	plaintext, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("encode inner event: %w", err)
	}

	eph, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(eph.Seed(), recipient, eph.PublicKey(), recipient)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	outer := event.New(event.KindGiftWrap, now, base64.StdEncoding.EncodeToString(sealed),
		event.Tag{"p", recipient.String()})
	return outer.Sign(eph), nil
}

// Unwrap opens a gift wrap addressed to recipient and returns the verified
// inner event.
func Unwrap(recipient *identity.Identity, outer *event.Event) (*event.Event, error) {
	if outer.Kind != event.KindGiftWrap {
		return nil, fmt.Errorf("not a gift wrap: %s", outer.Kind)
	}
	if err := outer.Verify(); err != nil {
		return nil, fmt.Errorf("verify wrap: %w", err)
	}
	if outer.TagValue("p") != recipient.PublicKey().String() {
		return nil, ErrNotForUs
	}

	sealed, err := base64.StdEncoding.DecodeString(outer.Content)
	if err != nil {
		return nil, fmt.Errorf("decode wrap: %w", err)
	}
	key, err := deriveKey(recipient.Seed(), outer.PubKey, outer.PubKey, recipient.PublicKey())
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("wrap too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open wrap: %w", err)
	}

	var inner event.Event
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, fmt.Errorf("decode inner event: %w", err)
	}
	if err := inner.Verify(); err != nil {
		return nil, fmt.Errorf("verify inner event: %w", err)
	}
	return &inner, nil
}

// deriveKey runs X25519 between seed's scalar and peer's Montgomery point,
// then HKDF over the shared secret salted with both public keys.
func deriveKey(seed []byte, peer, ephPub, recipient identity.PublicKey) ([]byte, error) {
	peerX, err := Montgomery(peer)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(Scalar(seed), peerX)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}
	salt := make([]byte, 0, 2*identity.PublicKeySize)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipient[:]...)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Montgomery maps an Ed25519 public key to its X25519 form.
func Montgomery(pk identity.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pk[:])
	if err != nil {
		return nil, fmt.Errorf("invalid public key point: %w", err)
	}
	return p.BytesMontgomery(), nil
}

// Scalar returns the X25519 private scalar matching an Ed25519 seed.
func Scalar(seed []byte) []byte {
	h := sha512.Sum512(seed)
	return h[:32]
}
