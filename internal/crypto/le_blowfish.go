package crypto

import (
	"fmt"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/constants"
)

// LECipher wraps a standard Blowfish ECB cipher with the byte-swap the L2
// client and server actually use: each 8-byte block is two 32-bit words
// read little-endian rather than big-endian. Equivalent to reversing each
// 4-byte half of the block, running the standard cipher, then reversing
// again. Without this wrapper no packet this toolkit sends or receives
// will ever decrypt on the other end.
type LECipher struct {
	inner *BlowfishCipher
}

// NewLECipher builds the little-endian Blowfish cipher from a raw key.
func NewLECipher(key []byte) (*LECipher, error) {
	inner, err := NewBlowfishCipher(key)
	if err != nil {
		return nil, err
	}
	return &LECipher{inner: inner}, nil
}

func swapHalves(block []byte) {
	block[0], block[1], block[2], block[3] = block[3], block[2], block[1], block[0]
	block[4], block[5], block[6], block[7] = block[7], block[6], block[5], block[4]
}

// Encrypt encrypts data[offset:offset+size] in place. size must be a
// multiple of the Blowfish block size.
func (c *LECipher) Encrypt(data []byte, offset, size int) error {
	if size%constants.BlowfishBlockSize != 0 {
		return errBlockAlign(size)
	}
	for i := offset; i < offset+size; i += constants.BlowfishBlockSize {
		block := data[i : i+constants.BlowfishBlockSize]
		swapHalves(block)
		if err := c.inner.Encrypt(block, 0, constants.BlowfishBlockSize); err != nil {
			return err
		}
		swapHalves(block)
	}
	return nil
}

// Decrypt decrypts data[offset:offset+size] in place. size must be a
// multiple of the Blowfish block size.
func (c *LECipher) Decrypt(data []byte, offset, size int) error {
	if size%constants.BlowfishBlockSize != 0 {
		return errBlockAlign(size)
	}
	for i := offset; i < offset+size; i += constants.BlowfishBlockSize {
		block := data[i : i+constants.BlowfishBlockSize]
		swapHalves(block)
		if err := c.inner.Decrypt(block, 0, constants.BlowfishBlockSize); err != nil {
			return err
		}
		swapHalves(block)
	}
	return nil
}

func errBlockAlign(size int) error {
	return apperrors.New(apperrors.KindCrypto, "le_blowfish", fmt.Sprintf("size %d not a multiple of block size", size))
}
