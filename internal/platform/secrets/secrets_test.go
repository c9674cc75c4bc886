package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		c, err := NewCipher("master-key")
		require.NoError(t, err)

		sealed, err := c.Encrypt("s3cret value")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret value", sealed)

		opened, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "s3cret value", opened)
	})

	t.Run("nonces differ per call", func(t *testing.T) {
		c, err := NewCipher("master-key")
		require.NoError(t, err)

		a, _ := c.Encrypt("same")
		b, _ := c.Encrypt("same")
		assert.NotEqual(t, a, b)
	})

	t.Run("wrong key fails to decrypt", func(t *testing.T) {
		c1, _ := NewCipher("key-one")
		c2, _ := NewCipher("key-two")

		sealed, _ := c1.Encrypt("value")
		_, err := c2.Decrypt(sealed)
		assert.Error(t, err)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		_, err := NewCipher("")
		assert.Error(t, err)
	})

	t.Run("garbage input errors", func(t *testing.T) {
		c, _ := NewCipher("master-key")
		_, err := c.Decrypt("not base64!!!")
		assert.Error(t, err)
		_, err = c.Decrypt("aGk=")
		assert.Error(t, err)
	})
}
