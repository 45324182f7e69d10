package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// MinCredentialLength keeps Redact from matching inside unrelated log text
const MinCredentialLength = 8

var (
	// ErrEmptyCredential is returned when a request carries no usable credential
	ErrEmptyCredential    = errors.New("credential is required")
	ErrCredentialTooShort = errors.New("credential is too short")
)

// Credential is a request-scoped provider secret. It prints as [REDACTED]
// through every fmt verb and JSON, and Wipe zeroes the backing bytes.
// Callers own exactly one Credential per request and must defer Wipe.
type Credential struct {
	mu     sync.RWMutex
	secret []byte
}

// NewCredential copies the trimmed secret into a private buffer
func NewCredential(secret string) (*Credential, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptyCredential
	}
	if len(secret) < MinCredentialLength {
		return nil, ErrCredentialTooShort
	}
	buf := make([]byte, len(secret))
	copy(buf, secret)
	return &Credential{secret: buf}, nil
}

// Reveal returns the secret for placing into an outbound provider request.
// It returns "" once the credential has been wiped.
func (c *Credential) Reveal() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.secret)
}

// Wipe zeroes the secret. Safe to call more than once.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.secret {
		c.secret[i] = 0
	}
	c.secret = nil
}

// Wiped reports whether Wipe has run
func (c *Credential) Wiped() bool {
	if c == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret == nil
}

// Redact replaces every occurrence of the secret in s
func (c *Credential) Redact(s string) string {
	secret := c.Reveal()
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, redacted)
}

func (c *Credential) String() string   { return redacted }
func (c *Credential) GoString() string { return redacted }

// Format keeps %v, %+v, %#v, %s and %q from ever printing the secret
func (c *Credential) Format(f fmt.State, verb rune) {
	_, _ = f.Write([]byte(redacted))
}

func (c *Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (c *Credential) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
