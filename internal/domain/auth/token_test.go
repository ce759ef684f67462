package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(DefaultConfig("test-secret"))

	token, exp, err := svc.Issue("u-1", "alice", []string{"operator"})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	actor, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.ID)
	assert.Equal(t, "alice", actor.Name)
	assert.Equal(t, []string{"operator"}, actor.Roles)
}

func TestTokenService_RejectsForeignSecret(t *testing.T) {
	issuer := NewTokenService(DefaultConfig("one"))
	verifier := NewTokenService(DefaultConfig("two"))

	token, _, err := issuer.Issue("u-1", "alice", nil)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := NewTokenService(Config{Secret: "s", Issuer: "stockalloc", TokenTTL: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := svc.Issue("u-1", "", nil)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_NameFallsBackToSubject(t *testing.T) {
	svc := NewTokenService(DefaultConfig("s"))
	token, _, err := svc.Issue("worker-7", "", nil)
	require.NoError(t, err)

	actor, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "worker-7", actor.Name)
}
