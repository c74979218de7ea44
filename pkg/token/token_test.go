package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("s3cr3t", "cloudvault", time.Hour)

	raw, exp, err := iss.Issue("user-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)

	c, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "a@example.com", c.Email)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("s3cr3t", "cloudvault", time.Hour)
	raw, _, err := iss.Issue("user-1", "")
	require.NoError(t, err)

	_, err = NewIssuer("other", "cloudvault", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = NewIssuer("s3cr3t", "someone-else", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	_, err = iss.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("s3cr3t", "cloudvault", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue("user-1", "")
	require.NoError(t, err)

	_, err = iss.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}
