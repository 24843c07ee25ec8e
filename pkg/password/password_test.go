package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	t.Run("hash is salted bcrypt", func(t *testing.T) {
		first, err := h.Hash("s3cret")
		require.NoError(t, err)
		second, err := h.Hash("s3cret")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(first, "$2a$") || strings.HasPrefix(first, "$2b$"))
		assert.NotEqual(t, first, second)
	})

	t.Run("verify matches only the original password", func(t *testing.T) {
		hash, err := h.Hash("s3cret")
		require.NoError(t, err)

		ok, err := h.Verify("s3cret", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.Verify("wrong", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verify against a malformed hash errors", func(t *testing.T) {
		_, err := h.Verify("s3cret", "not-a-hash")
		assert.Error(t, err)
	})

	t.Run("needs rehash when cost differs", func(t *testing.T) {
		hash, err := h.Hash("s3cret")
		require.NoError(t, err)
		assert.False(t, h.NeedsRehash(hash))
		assert.True(t, NewBcryptHasher(bcrypt.MinCost+1).NeedsRehash(hash))
		assert.True(t, h.NeedsRehash("garbage"))
	})
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(1).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewBcryptHasher(99).Cost())
}
