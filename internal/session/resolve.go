package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/dialog/internal/config"
	"github.com/matheus3301/dialog/internal/identity"
)

const DefaultSessionName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// ValidateName checks that a session name is safe to use as a key file name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, nameRegexp)
	}
	return nil
}

// LoadIdentity returns the identity for a session. DIALOG_SECRET_KEY_HEX
// takes precedence over the session key file; otherwise the key file is
// created on first use. created reports whether a new key was generated.
func LoadIdentity(name string, getenv func(string) string) (id *identity.Identity, created bool, err error) {
	if getenv != nil {
		if hexKey := getenv("DIALOG_SECRET_KEY_HEX"); hexKey != "" {
			id, err := identity.FromSeedHex(hexKey)
			if err != nil {
				return nil, false, fmt.Errorf("DIALOG_SECRET_KEY_HEX: %w", err)
			}
			return id, false, nil
		}
	}
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	return identity.LoadOrCreate(KeyPath(name))
}
