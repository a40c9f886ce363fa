package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modulusBytes(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	n := key.PublicKey.N.Bytes()
	if len(n) == RSA1024ModulusSizeForTest {
		return n
	}
	padded := make([]byte, RSA1024ModulusSizeForTest)
	copy(padded[RSA1024ModulusSizeForTest-len(n):], n)
	return padded
}

const RSA1024ModulusSizeForTest = 128

func TestPublicKeyEncryptNoPaddingRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	pub := NewPublicKeyFromModulus(modulusBytes(t, priv))

	plaintext := make([]byte, 128)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}
	// Block value must be smaller than modulus; zero the top byte to be safe.
	plaintext[0] = 0x00

	ciphertext, err := pub.EncryptNoPadding(plaintext)
	require.NoError(t, err)
	assert.Len(t, ciphertext, 128)
	assert.NotEqual(t, plaintext, ciphertext)

	recovered := new(big.Int).Exp(new(big.Int).SetBytes(ciphertext), priv.D, priv.N).Bytes()
	padded := make([]byte, 128)
	copy(padded[128-len(recovered):], recovered)
	assert.Equal(t, plaintext, padded)
}

func TestPublicKeyEncryptNoPaddingRejectsWrongSize(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	pub := NewPublicKeyFromModulus(modulusBytes(t, priv))

	_, err = pub.EncryptNoPadding(make([]byte, 64))
	assert.Error(t, err)
}

func TestBuildCredentialBlockPlacesFieldsAtOffsets(t *testing.T) {
	block, err := BuildCredentialBlock("testuser", "hunter2")
	require.NoError(t, err)
	require.Len(t, block, 128)

	assert.Equal(t, "testuser", string(block[0x5E:0x5E+len("testuser")]))
	assert.Equal(t, "hunter2", string(block[0x6C:0x6C+len("hunter2")]))
}

func TestBuildCredentialBlockRejectsOversizedFields(t *testing.T) {
	_, err := BuildCredentialBlock("this_username_is_way_too_long", "pw")
	assert.Error(t, err)

	_, err = BuildCredentialBlock("user", "this_password_is_definitely_too_long")
	assert.Error(t, err)
}
