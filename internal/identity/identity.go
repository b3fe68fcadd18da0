// Package identity holds the long-lived signing key that names a user on
// the relay. Public keys are rendered as 64 hex characters.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const privatePEMType = "ED25519 PRIVATE KEY"

// PublicKeySize is the length of a public key in bytes.
const PublicKeySize = ed25519.PublicKeySize

// PublicKey identifies a participant. The zero value is not a valid key.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a 64-character hex public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	s = strings.TrimSpace(s)
	if len(s) != 2*PublicKeySize {
		return pk, fmt.Errorf("public key must be %d hex characters, got %d", 2*PublicKeySize, len(s))
	}
	if _, err := hex.Decode(pk[:], []byte(s)); err != nil {
		return pk, fmt.Errorf("decode public key: %w", err)
	}
	if pk.IsZero() {
		return pk, errors.New("public key is all zeroes")
	}
	return pk, nil
}

// MustParsePublicKey is ParsePublicKey for constants and tests.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// Short returns the first eight hex characters, for display.
func (p PublicKey) Short() string { return p.String()[:8] }

func (p PublicKey) IsZero() bool { return p == PublicKey{} }

// MarshalText writes the hex form. The zero key is written as "" so an
// unset key survives a round trip.
func (p PublicKey) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts the hex form, or "" for the zero key.
func (p *PublicKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = PublicKey{}
		return nil
	}
	pk, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Verify checks sig over msg.
func (p PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(p[:]), msg, sig)
}

// Identity is a private signing key and its public half.
type Identity struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

// Generate creates a fresh random identity.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeedHex builds an identity from a 32-byte hex seed.
func FromSeedHex(s string) (*Identity, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

func fromPrivate(priv ed25519.PrivateKey) *Identity {
	id := &Identity{priv: priv}
	copy(id.pub[:], priv.Public().(ed25519.PublicKey))
	return id
}

func (id *Identity) PublicKey() PublicKey { return id.pub }

// Seed returns the 32-byte private seed.
func (id *Identity) Seed() []byte { return id.priv.Seed() }

func (id *Identity) SeedHex() string { return hex.EncodeToString(id.priv.Seed()) }

// Sign signs msg with the identity key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.priv, msg)
}

// LoadOrCreate reads a PEM identity from path, generating and saving a new
// one on first run.
func LoadOrCreate(path string) (*Identity, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	id, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// Load reads a PEM-encoded identity.
func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("decode identity PEM: no PEM block")
	}
	if block.Type != privatePEMType {
		return nil, fmt.Errorf("decode identity PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode identity PEM: invalid key size %d", len(block.Bytes))
	}
	return fromPrivate(ed25519.PrivateKey(block.Bytes)), nil
}

// Save writes the identity as PEM with 0600 permissions.
func Save(path string, id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: id.priv})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
