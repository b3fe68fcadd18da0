package session

import (
	"os"
	"path/filepath"

	"github.com/matheus3301/dialog/internal/identity"
)

// BaseDir returns ~/.dialog, or $DIALOG_HOME when set.
func BaseDir() string {
	if d := os.Getenv("DIALOG_HOME"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dialog")
}

// KeyPath returns the identity key file for a session.
func KeyPath(name string) string {
	return filepath.Join(BaseDir(), "keys", name+".key")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// IdentityDir returns the directory owned by one identity. Everything a
// running client persists lives under it.
func IdentityDir(pk identity.PublicKey) string {
	return filepath.Join(BaseDir(), "identities", pk.String())
}

// DBPath returns the persistence gateway database for an identity.
func DBPath(pk identity.PublicKey) string {
	return filepath.Join(IdentityDir(pk), "dialog.db")
}

// SocketPath returns the control socket of a running client.
func SocketPath(pk identity.PublicKey) string {
	return filepath.Join(IdentityDir(pk), "control.sock")
}

// LogDir returns the log directory for an identity.
func LogDir(pk identity.PublicKey) string {
	return filepath.Join(IdentityDir(pk), "logs")
}

// LogPath returns the client log file path.
func LogPath(pk identity.PublicKey) string {
	return filepath.Join(LogDir(pk), "dialog.log")
}

// EnsureDir creates the identity directory tree with proper permissions.
func EnsureDir(pk identity.PublicKey) error {
	dirs := []string{
		IdentityDir(pk),
		LogDir(pk),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
