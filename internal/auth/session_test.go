package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestCredentialsValidate(t *testing.T) {
	now := time.Now()

	var missing *Credentials
	assert.ErrorIs(t, missing.Validate(now), ErrNoSession)
	assert.ErrorIs(t, (&Credentials{}).Validate(now), ErrNoSession)

	plain := &Credentials{UserID: "u-1", Username: "alice"}
	assert.NoError(t, plain.Validate(now))

	expired := &Credentials{UserID: "u-1", ExpiresAt: now.Add(-time.Minute).Unix()}
	assert.ErrorIs(t, expired.Validate(now), ErrSessionExpired)

	good := &Credentials{UserID: "u-1", Token: signedToken(t, jwt.MapClaims{"sub": "u-1", "exp": now.Add(time.Hour).Unix()})}
	assert.NoError(t, good.Validate(now))

	stale := &Credentials{UserID: "u-1", Token: signedToken(t, jwt.MapClaims{"sub": "u-1", "exp": now.Add(-time.Hour).Unix()})}
	assert.ErrorIs(t, stale.Validate(now), ErrSessionExpired)

	other := &Credentials{UserID: "u-1", Token: signedToken(t, jwt.MapClaims{"sub": "u-2"})}
	assert.Error(t, other.Validate(now))

	garbage := &Credentials{UserID: "u-1", Token: "not-a-jwt"}
	assert.Error(t, garbage.Validate(now))
}

func TestHolderSwapsIdentity(t *testing.T) {
	h := NewHolder(nil)
	_, _, err := h.Credentials()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, "", h.UserID())

	h.Set(&Credentials{UserID: "u-7", Username: "bob"})
	uid, tok, err := h.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "u-7", uid)
	assert.Empty(t, tok)

	cp := h.Get()
	cp.UserID = "mutated"
	assert.Equal(t, "u-7", h.UserID())
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.Save(ctx, &Credentials{UserID: "u-1", Username: "alice"}))
	c, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Username)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	_, err := Restore(ctx, s, nil)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.Save(ctx, &Credentials{UserID: "u-1", Username: "old", Token: "tok"}))
	c, err := Restore(ctx, s, func(_ context.Context, c *Credentials) (*Credentials, error) {
		return &Credentials{UserID: c.UserID, Username: "alice"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "tok", c.Token)

	_, err = Restore(ctx, s, func(context.Context, *Credentials) (*Credentials, error) {
		return nil, errors.New("unauthorized")
	})
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession, "a rejected session must be cleared")
}
