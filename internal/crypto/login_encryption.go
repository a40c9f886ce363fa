package crypto

import (
	"fmt"
)

// StaticBlowfishKey is the key hardcoded in the L2 client for the first Init packet.
var StaticBlowfishKey = []byte{
	0x6b, 0x60, 0xcb, 0x5b,
	0x82, 0xce, 0x90, 0xb1,
	0xcc, 0x2b, 0x6c, 0x55,
	0x6c, 0x6c, 0x6c, 0x6c,
}

// LoginEncryption handles the non-standard little-endian Blowfish used by
// the login protocol. The first packet exchanged (Init, server→client) uses
// the static key + encXORPass; every packet after that uses the dynamic key
// extracted from Init, plus a trailing XOR checksum instead of the pass.
type LoginEncryption struct {
	staticCipher  *LECipher
	dynamicCipher *LECipher
}

// NewLoginEncryption creates a LoginEncryption with the given dynamic key.
// dynamicKey is nil until the Init packet has been received and parsed; call
// SetDynamicKey once it is known.
func NewLoginEncryption(dynamicKey []byte) (*LoginEncryption, error) {
	sc, err := NewLECipher(StaticBlowfishKey)
	if err != nil {
		return nil, fmt.Errorf("creating static le-blowfish cipher: %w", err)
	}
	le := &LoginEncryption{staticCipher: sc}
	if dynamicKey != nil {
		if err := le.SetDynamicKey(dynamicKey); err != nil {
			return nil, err
		}
	}
	return le, nil
}

// SetDynamicKey installs the dynamic Blowfish key extracted from the Init
// packet's body. Must be called before EncryptPacketClient/DecryptPacket.
func (le *LoginEncryption) SetDynamicKey(dynamicKey []byte) error {
	dc, err := NewLECipher(dynamicKey)
	if err != nil {
		return fmt.Errorf("creating dynamic le-blowfish cipher: %w", err)
	}
	le.dynamicCipher = dc
	return nil
}

// DecryptInitPacket decrypts the server's Init packet body in-place: static
// Blowfish decrypt followed by the reverse XOR pass. size must be the whole
// body length (a multiple of 8, already stripped of the 2-byte length prefix
// and opcode is left in place — offset should point at byte 0 of the body).
func (le *LoginEncryption) DecryptInitPacket(data []byte, offset, size int) error {
	if size%8 != 0 {
		return fmt.Errorf("decrypt init packet: size %d is not multiple of 8", size)
	}
	if err := le.staticCipher.Decrypt(data, offset, size); err != nil {
		return fmt.Errorf("decrypting init packet: %w", err)
	}
	DecXORPass(data, offset, size)
	return nil
}

// DecryptPacket decrypts an incoming packet in-place using the dynamic Blowfish key.
// Returns true if the checksum is valid.
func (le *LoginEncryption) DecryptPacket(data []byte, offset, size int) (bool, error) {
	// Incoming packets are always encrypted with the dynamic key
	if size%8 != 0 {
		return false, fmt.Errorf("decrypt packet: size %d is not multiple of 8", size)
	}
	if err := le.dynamicCipher.Decrypt(data, offset, size); err != nil {
		return false, fmt.Errorf("decrypting packet: %w", err)
	}
	return VerifyChecksum(data, offset, size), nil
}

// EncryptPacketClient encrypts an outgoing packet from client to server.
// For clients, ALL packets use: appendChecksum + dynamic Blowfish (no encXORPass, no firstPacket logic).
// Returns the total size to send (includes padding to multiple of 8).
func (le *LoginEncryption) EncryptPacketClient(data []byte, offset, size int) (int, error) {
	// Add 4 bytes for checksum, then pad to multiple of 8
	checksumSize := size + 4
	if checksumSize%8 != 0 {
		checksumSize += 8 - (checksumSize % 8)
	}

	// Ensure we have enough space
	if offset+checksumSize > len(data) {
		return 0, fmt.Errorf("encrypt packet client: buffer too small (need %d, have %d)", offset+checksumSize, len(data))
	}

	// Zero out padding bytes
	for i := offset + size; i < offset+checksumSize; i++ {
		data[i] = 0
	}

	// Append checksum (XOR of all 32-bit words)
	AppendChecksum(data, offset, checksumSize)

	// Encrypt with dynamic Blowfish
	if err := le.dynamicCipher.Encrypt(data, offset, checksumSize); err != nil {
		return 0, fmt.Errorf("encrypting client packet: %w", err)
	}

	return checksumSize, nil
}
