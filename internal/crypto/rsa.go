package crypto

import (
	"fmt"

	"github.com/la2geo/geoharvest/internal/constants"
)

// ScrambleModulus applies the 4-step XOR/swap obfuscation to the RSA modulus
// as done in L2J ScrambledKeyPair.java.
// Input must be exactly 128 bytes.
func ScrambleModulus(modulus []byte) []byte {
	if len(modulus) != constants.RSA1024ModulusSize {
		panic(fmt.Sprintf("ScrambleModulus: expected %d bytes, got %d", constants.RSA1024ModulusSize, len(modulus)))
	}

	scrambled := make([]byte, constants.RSA1024ModulusSize)
	copy(scrambled, modulus)

	// Step 1: swap bytes 0x00-0x03 with 0x4D-0x50
	for i := range constants.ScrambleSwapLength {
		scrambled[constants.ScrambleSwapOffset1+i], scrambled[constants.ScrambleSwapOffset2+i] =
			scrambled[constants.ScrambleSwapOffset2+i], scrambled[constants.ScrambleSwapOffset1+i]
	}

	// Step 2: XOR first 0x40 bytes with last 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		scrambled[constants.ScrambleXORBlock1Start+i] ^= scrambled[constants.ScrambleXORBlock2Start+i]
	}

	// Step 3: XOR bytes 0x0D-0x10 with bytes 0x34-0x37
	for i := range constants.ScrambleXORLength {
		scrambled[constants.ScrambleXOROffset1+i] ^= scrambled[constants.ScrambleXOROffset2+i]
	}

	// Step 4: XOR last 0x40 bytes with first 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		scrambled[constants.ScrambleXORBlock2Start+i] ^= scrambled[constants.ScrambleXORBlock1Start+i]
	}

	return scrambled
}

// UnscrambleModulus reverses the ScrambleModulus operation to restore the original modulus.
// Client uses this to extract the original RSA public key from the scrambled modulus in Init packet.
// Input must be exactly 128 bytes.
func UnscrambleModulus(scrambled []byte) []byte {
	if len(scrambled) != constants.RSA1024ModulusSize {
		panic(fmt.Sprintf("UnscrambleModulus: expected %d bytes, got %d", constants.RSA1024ModulusSize, len(scrambled)))
	}

	unscrambled := make([]byte, constants.RSA1024ModulusSize)
	copy(unscrambled, scrambled)

	// Apply operations in REVERSE order

	// Step 4 reverse: XOR last 0x40 bytes with first 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		unscrambled[constants.ScrambleXORBlock2Start+i] ^= unscrambled[constants.ScrambleXORBlock1Start+i]
	}

	// Step 3 reverse: XOR bytes 0x0D-0x10 with bytes 0x34-0x37
	for i := range constants.ScrambleXORLength {
		unscrambled[constants.ScrambleXOROffset1+i] ^= unscrambled[constants.ScrambleXOROffset2+i]
	}

	// Step 2 reverse: XOR first 0x40 bytes with last 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		unscrambled[constants.ScrambleXORBlock1Start+i] ^= unscrambled[constants.ScrambleXORBlock2Start+i]
	}

	// Step 1 reverse: swap bytes 0x00-0x03 with 0x4D-0x50
	for i := range constants.ScrambleSwapLength {
		unscrambled[constants.ScrambleSwapOffset1+i], unscrambled[constants.ScrambleSwapOffset2+i] =
			unscrambled[constants.ScrambleSwapOffset2+i], unscrambled[constants.ScrambleSwapOffset1+i]
	}

	return unscrambled
}
