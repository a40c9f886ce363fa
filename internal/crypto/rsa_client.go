package crypto

import (
	"math/big"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/constants"
)

// PublicKey is the minimal RSA public key the client needs: a modulus and
// the fixed exponent 65537, both recovered from the Init packet.
type PublicKey struct {
	N *big.Int
}

// NewPublicKeyFromModulus builds a public key from a descrambled, big-endian
// 128-byte modulus.
func NewPublicKeyFromModulus(modulus []byte) *PublicKey {
	return &PublicKey{N: new(big.Int).SetBytes(modulus)}
}

// EncryptNoPadding RSA-encrypts a 128-byte plaintext block with no padding:
// c = m^e mod n, emitted as exactly 128 big-endian bytes. This is the raw,
// unpadded operation the login credential block requires — crypto/rsa's own
// EncryptPKCS1v15/EncryptOAEP both add padding the server does not expect.
func (pk *PublicKey) EncryptNoPadding(plaintext []byte) ([]byte, error) {
	if len(plaintext) != constants.RSA1024ModulusSize {
		return nil, apperrors.New(apperrors.KindCrypto, "rsa.encrypt", "plaintext must be 128 bytes")
	}

	m := new(big.Int).SetBytes(plaintext)
	if m.Cmp(pk.N) >= 0 {
		return nil, apperrors.New(apperrors.KindCrypto, "rsa.encrypt", "plaintext block is not smaller than modulus")
	}

	e := big.NewInt(constants.RSAPublicExponent)
	c := new(big.Int).Exp(m, e, pk.N)

	out := make([]byte, constants.RSA1024ModulusSize)
	c.FillBytes(out)
	return out, nil
}

// BuildCredentialBlock lays out username/password at their fixed offsets in
// a zeroed 128-byte buffer, per the login AuthLogin credential layout.
func BuildCredentialBlock(username, password string) ([]byte, error) {
	if len(username) > constants.AuthLoginUsernameMaxLength {
		return nil, apperrors.New(apperrors.KindCrypto, "rsa.credential", "username exceeds 14 bytes")
	}
	if len(password) > constants.AuthLoginPasswordMaxLength {
		return nil, apperrors.New(apperrors.KindCrypto, "rsa.credential", "password exceeds 16 bytes")
	}

	block := make([]byte, constants.RSA1024ModulusSize)
	copy(block[constants.AuthLoginUsernameOffset:], username)
	copy(block[constants.AuthLoginPasswordOffset:], password)
	// 4 zero bytes at 0x7C are already zero from make().
	return block, nil
}
