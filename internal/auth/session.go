// internal/auth/session.go
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession means no local credentials exist.
	ErrNoSession = errors.New("no local session")
	// ErrSessionExpired means the stored credentials are past their expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Credentials is the locally persisted session, the client-side counterpart of
// the server's session record. Token is optional; when present it must be a JWT
// whose "sub" matches UserID.
type Credentials struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Validate checks the credentials against the given instant without any network call.
func (c *Credentials) Validate(now time.Time) error {
	if c == nil || c.UserID == "" {
		return ErrNoSession
	}
	if c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt {
		return ErrSessionExpired
	}
	if c.Token == "" {
		return nil
	}
	sub, err := SubjectFromToken(c.Token, now)
	if err != nil {
		return err
	}
	if sub != "" && sub != c.UserID {
		return fmt.Errorf("token subject %q does not match user %q", sub, c.UserID)
	}
	return nil
}

// Credentials implements transport.Identity.
func (c *Credentials) Credentials() (string, string, error) {
	if err := c.Validate(time.Now()); err != nil {
		return "", "", err
	}
	return c.UserID, c.Token, nil
}

// SubjectFromToken reads the "sub" claim of a JWT and rejects expired tokens.
// The signature is not verified: the client never holds the server's key, and
// the server re-validates every request anyway.
func SubjectFromToken(tokenString string, now time.Time) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return "", ErrSessionExpired
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid sub claim: %w", err)
	}
	return sub, nil
}

// Holder is a swappable identity shared by every request of one client.
type Holder struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewHolder wraps the given credentials, which may be nil.
func NewHolder(c *Credentials) *Holder {
	return &Holder{creds: c}
}

// Set replaces the current credentials.
func (h *Holder) Set(c *Credentials) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creds = c
}

// Get returns a copy of the current credentials, or nil.
func (h *Holder) Get() *Credentials {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.creds == nil {
		return nil
	}
	cp := *h.creds
	return &cp
}

// UserID returns the current user id, or "".
func (h *Holder) UserID() string {
	if c := h.Get(); c != nil {
		return c.UserID
	}
	return ""
}

// Credentials implements transport.Identity.
func (h *Holder) Credentials() (string, string, error) {
	return h.Get().Credentials()
}
