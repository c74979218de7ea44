package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Params{Time: 1, Memory: 8 * 1024, Threads: 1}

func TestHashAndVerify(t *testing.T) {
	h, err := HashWithParams("secret123", fast)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "argon2id$1$8192$1$"))
	assert.NotContains(t, h, "secret123")

	ok, err := Verify("secret123", h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("wrong", h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := HashWithParams("same", fast)
	require.NoError(t, err)
	b, err := HashWithParams("same", fast)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, enc := range []string{
		"",
		"bcrypt$1$2$3$4$5",
		"argon2id$x$8192$1$c2FsdA$aGFzaA",
		"argon2id$1$8192$0$c2FsdA$aGFzaA",
		"argon2id$1$8192$1$!!$aGFzaA",
	} {
		_, err := Verify("x", enc)
		assert.ErrorIs(t, err, ErrInvalidHash, enc)
	}
}
