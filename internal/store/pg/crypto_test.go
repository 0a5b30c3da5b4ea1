package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundtrip(t *testing.T) {
	box, err := newSecretBox("test-passphrase")
	require.NoError(t, err)

	sealed, err := box.Seal("sk-super-secret")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk-super-secret")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", plain)
}

func TestSecretBoxNonceVariation(t *testing.T) {
	box, err := newSecretBox("test-passphrase")
	require.NoError(t, err)

	a, err := box.Seal("same-plaintext")
	require.NoError(t, err)
	b, err := box.Seal("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretBoxWrongKey(t *testing.T) {
	box, err := newSecretBox("key-one")
	require.NoError(t, err)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	other, err := newSecretBox("key-two")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestSecretBoxRejectsGarbage(t *testing.T) {
	box, err := newSecretBox("key")
	require.NoError(t, err)

	_, err = box.Open("not base64!!!")
	assert.Error(t, err)
	_, err = box.Open("dG9vc2hvcnQ=")
	assert.Error(t, err)
}

func TestSecretBoxEmptyPassphrase(t *testing.T) {
	_, err := newSecretBox("")
	assert.Error(t, err)
}
