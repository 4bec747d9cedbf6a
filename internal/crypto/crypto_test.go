package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditSigner(t *testing.T) {
	s, err := NewAuditSigner("correct horse", "salt")
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	detail := []byte(`{"decision_id":"dec_1"}`)
	sig := s.Sign("decision:execute", detail, at)

	assert.True(t, s.Verify("decision:execute", detail, at, sig))
	assert.False(t, s.Verify("decision:rejected", detail, at, sig))
	assert.False(t, s.Verify("decision:execute", []byte(`{"decision_id":"dec_2"}`), at, sig))
	assert.False(t, s.Verify("decision:execute", detail, at.Add(time.Millisecond), sig))
	assert.False(t, s.Verify("decision:execute", detail, at, "%%%"))

	// nanoseconds below the column precision do not change the signature
	assert.Equal(t, sig, s.Sign("decision:execute", detail, at.Add(400*time.Nanosecond)))

	other, err := NewAuditSigner("another passphrase", "salt")
	require.NoError(t, err)
	assert.False(t, other.Verify("decision:execute", detail, at, sig))
	assert.NotContains(t, s.String(), "horse")
}

func TestNewAuditSignerRequiresPassphrase(t *testing.T) {
	_, err := NewAuditSigner("", "salt")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestAPIKey(t *testing.T) {
	h, err := HashAPIKey("s3cret")
	require.NoError(t, err)

	assert.True(t, CheckAPIKey(h, "s3cret"))
	assert.False(t, CheckAPIKey(h, "guess"))
	assert.False(t, CheckAPIKey("", "s3cret"))

	_, err = HashAPIKey("")
	assert.Error(t, err)
}
