package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with hyphen", "alice-laptop", false},
		{"valid with underscore", "bob_2", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Alice", true},
		{"dot", "../etc", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestIdentityPaths(t *testing.T) {
	t.Setenv("DIALOG_HOME", t.TempDir())

	id, created, err := LoadIdentity("alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first LoadIdentity should create a key")
	}

	pk := id.PublicKey()
	if !strings.HasSuffix(DBPath(pk), filepath.Join("identities", pk.String(), "dialog.db")) {
		t.Errorf("DBPath = %q", DBPath(pk))
	}
	if !strings.HasSuffix(SocketPath(pk), filepath.Join(pk.String(), "control.sock")) {
		t.Errorf("SocketPath = %q", SocketPath(pk))
	}

	if err := EnsureDir(pk); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir(pk))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("log dir permission = %o, want 0700", info.Mode().Perm())
	}

	again, created, err := LoadIdentity("alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if created || again.PublicKey() != pk {
		t.Error("second LoadIdentity should reuse the stored key")
	}
}

func TestLoadIdentityFromEnv(t *testing.T) {
	t.Setenv("DIALOG_HOME", t.TempDir())
	seed := strings.Repeat("11", 32)
	env := func(k string) string {
		if k == "DIALOG_SECRET_KEY_HEX" {
			return seed
		}
		return ""
	}
	id, created, err := LoadIdentity("ignored", env)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("env key should not be reported as created")
	}
	if id.SeedHex() != seed {
		t.Errorf("SeedHex = %q, want env seed", id.SeedHex())
	}
	if _, err := os.Stat(KeyPath("ignored")); !os.IsNotExist(err) {
		t.Error("env key should not write a key file")
	}
}
