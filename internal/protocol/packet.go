// Package protocol frames login-server and game-server packets: a 2-byte
// little-endian length prefix (inclusive of itself) followed by an
// encrypted body.
package protocol

import (
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/crypto"
)

// WritePacket encrypts payload in-place with the dynamic login cipher and
// writes the framed packet to w. Precondition: payload lives at
// buf[2 : 2+payloadLen]. buf must have room for the 2-byte length header,
// the payload, and encryption padding (checksum + up to 7 zero bytes).
func WritePacket(w io.Writer, enc *crypto.LoginEncryption, buf []byte, payloadLen int) error {
	needed := 2 + payloadLen + 8
	if len(buf) < needed {
		return apperrors.New(apperrors.KindIO, "protocol.write_packet", "buffer too small").
			WithContext("need", needed, "have", len(buf))
	}

	clear(buf[2+payloadLen : needed])

	encSize, err := enc.EncryptPacketClient(buf, 2, payloadLen)
	if err != nil {
		return apperrors.Wrap(apperrors.KindCrypto, "protocol.write_packet.encrypt", err)
	}

	totalLen := 2 + encSize
	binary.LittleEndian.PutUint16(buf[:2], uint16(totalLen))

	if _, err := w.Write(buf[:totalLen]); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "protocol.write_packet.write", err)
	}
	return nil
}

// ReadPacket reads one framed packet from r into buf and decrypts it with
// the dynamic login cipher. Returns a subslice of buf holding the decrypted
// payload, length prefix stripped.
func ReadPacket(r io.Reader, enc *crypto.LoginEncryption, buf []byte) ([]byte, error) {
	payload, err := readFrame(r, buf)
	if err != nil {
		return nil, err
	}

	ok, err := enc.DecryptPacket(payload, 0, len(payload))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindCrypto, "protocol.read_packet.decrypt", err)
	}
	if !ok {
		slog.Warn("packet checksum verification failed")
	}
	return payload, nil
}

// ReadInitPacket reads the login server's very first packet (Init) and
// decrypts it with the static cipher plus the reverse XOR pass. Installing
// the dynamic key once the body has been parsed is the caller's job.
func ReadInitPacket(r io.Reader, enc *crypto.LoginEncryption, buf []byte) ([]byte, error) {
	payload, err := readFrame(r, buf)
	if err != nil {
		return nil, err
	}
	if err := enc.DecryptInitPacket(payload, 0, len(payload)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCrypto, "protocol.read_init_packet.decrypt", err)
	}
	return payload, nil
}

// readFrame reads the 2-byte length prefix and the payload it announces,
// returning the payload subslice of buf (prefix stripped, still encrypted).
func readFrame(r io.Reader, buf []byte) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "protocol.read_frame.header", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[:]))
	if totalLen < 2 {
		return nil, apperrors.New(apperrors.KindFormat, "protocol.read_frame", "invalid packet length").
			WithContext("length", totalLen)
	}

	payloadLen := totalLen - 2
	if payloadLen == 0 {
		return nil, apperrors.New(apperrors.KindFormat, "protocol.read_frame", "empty packet")
	}
	if payloadLen > len(buf) {
		return nil, apperrors.New(apperrors.KindFormat, "protocol.read_frame", "payload exceeds buffer").
			WithContext("payload_len", payloadLen, "buffer_len", len(buf))
	}

	payload := buf[:payloadLen]
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "protocol.read_frame.payload", err)
	}
	return payload, nil
}
