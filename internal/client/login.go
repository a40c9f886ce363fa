package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/constants"
	"github.com/la2geo/geoharvest/internal/crypto"
	"github.com/la2geo/geoharvest/internal/protocol"
)

// Login-server opcodes.
const (
	opInit           = 0x00
	opGGAuthRequest  = 0x07
	opGGAuthResponse = 0x0B
	opAuthLogin      = 0x00
	opLoginFail      = 0x01
	opLoginOk        = 0x03
	opServerListReq  = 0x05
	opServerList     = 0x04
	opSelectServer   = 0x02
	opPlayOk         = 0x07
	opPlayFail       = 0x06
)

const handshakeTimeout = 10 * time.Second

// LoginClient drives the login-server handshake: Disconnect -> RecvInit ->
// GGAuth -> AuthLogin -> ServerList -> SelectServer. Any deviation from the
// expected opcode sequence aborts the session.
type LoginClient struct {
	conn net.Conn
	enc  *crypto.LoginEncryption

	sessionID uint32
	pubKey    *crypto.PublicKey

	LoginKey1 uint32
	LoginKey2 uint32
	PlayKey1  uint32
	PlayKey2  uint32
	Servers   []ServerInfo

	sendBuf []byte
	recvBuf []byte
}

// Connect opens the TCP connection and immediately performs RecvInit,
// descrambling the RSA modulus and installing the dynamic Blowfish key.
func Connect(ctx context.Context, host string, port int) (*LoginClient, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "client.login.connect", err).WithContext("addr", addr)
	}

	enc, err := crypto.NewLoginEncryption(nil)
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.KindCrypto, "client.login.connect", err)
	}

	lc := &LoginClient{
		conn:    conn,
		enc:     enc,
		sendBuf: make([]byte, 512),
		recvBuf: make([]byte, 4096),
	}
	if err := lc.recvInit(); err != nil {
		conn.Close()
		return nil, err
	}
	return lc, nil
}

func (lc *LoginClient) Close() error {
	return lc.conn.Close()
}

func (lc *LoginClient) recvInit() error {
	lc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	body, err := protocol.ReadInitPacket(lc.conn, lc.enc, lc.recvBuf)
	if err != nil {
		return apperrors.Wrap(apperrors.KindProtocol, "client.login.recv_init", err)
	}
	if len(body) < constants.InitPacketTotalSize-1 {
		return apperrors.New(apperrors.KindFormat, "client.login.recv_init", "init packet too short").
			WithContext("len", len(body))
	}
	if body[constants.InitPacketOpcodeOffset] != opInit {
		return apperrors.New(apperrors.KindProtocol, "client.login.recv_init", "unexpected opcode").
			WithContext("opcode", body[0])
	}

	lc.sessionID = binary.LittleEndian.Uint32(body[constants.InitPacketSessionIDOffset:])
	scrambled := body[constants.InitPacketModulusOffset : constants.InitPacketModulusOffset+constants.RSA1024ModulusSize]
	modulus := crypto.UnscrambleModulus(scrambled)
	lc.pubKey = crypto.NewPublicKeyFromModulus(modulus)

	bfKey := body[constants.InitPacketBlowfishKeyOffset : constants.InitPacketBlowfishKeyOffset+constants.BlowfishKeySize]
	if err := lc.enc.SetDynamicKey(bfKey); err != nil {
		return apperrors.Wrap(apperrors.KindCrypto, "client.login.recv_init", err)
	}
	return nil
}

func (lc *LoginClient) send(payload []byte) error {
	needed := 2 + len(payload) + 8
	if cap(lc.sendBuf) < needed {
		lc.sendBuf = make([]byte, needed)
	}
	buf := lc.sendBuf[:needed]
	copy(buf[2:], payload)
	lc.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	return protocol.WritePacket(lc.conn, lc.enc, buf, len(payload))
}

func (lc *LoginClient) recv() ([]byte, error) {
	lc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	return protocol.ReadPacket(lc.conn, lc.enc, lc.recvBuf)
}

// GGAuth sends the GameGuard placeholder response and expects opcode 0x0B.
func (lc *LoginClient) GGAuth() error {
	payload := make([]byte, 20)
	payload[0] = opGGAuthRequest
	binary.LittleEndian.PutUint32(payload[1:], lc.sessionID)
	if err := lc.send(payload); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.gg_auth", err)
	}

	body, err := lc.recv()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.gg_auth", err)
	}
	if len(body) < 1 || body[0] != opGGAuthResponse {
		return apperrors.New(apperrors.KindProtocol, "client.login.gg_auth", "expected GGAuth response").
			WithContext("opcode", firstByte(body))
	}
	return nil
}

// AuthLogin RSA-encrypts the credential block and sends RequestAuthLogin,
// expecting either LoginOk (parsing key1/key2) or LoginFail.
func (lc *LoginClient) AuthLogin(username, password string) error {
	creds, err := crypto.BuildCredentialBlock(username, password)
	if err != nil {
		return apperrors.Wrap(apperrors.KindCrypto, "client.login.auth_login", err)
	}
	ciphertext, err := lc.pubKey.EncryptNoPadding(creds)
	if err != nil {
		return apperrors.Wrap(apperrors.KindCrypto, "client.login.auth_login", err)
	}

	payload := make([]byte, 1+len(ciphertext))
	payload[0] = opAuthLogin
	copy(payload[1:], ciphertext)
	if err := lc.send(payload); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.auth_login", err)
	}

	body, err := lc.recv()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.auth_login", err)
	}
	if len(body) == 0 {
		return apperrors.New(apperrors.KindProtocol, "client.login.auth_login", "empty response")
	}

	switch body[0] {
	case opLoginFail:
		reason := uint32(0)
		if len(body) >= 5 {
			reason = binary.LittleEndian.Uint32(body[1:])
		}
		return apperrors.New(apperrors.KindProtocol, "client.login.auth_login", "login failed").
			WithContext("reason", reason)
	case opLoginOk:
		if len(body) < 9 {
			return apperrors.New(apperrors.KindFormat, "client.login.auth_login", "login ok body too short")
		}
		lc.LoginKey1 = binary.LittleEndian.Uint32(body[1:])
		lc.LoginKey2 = binary.LittleEndian.Uint32(body[5:])
		return nil
	default:
		return apperrors.New(apperrors.KindProtocol, "client.login.auth_login", "unexpected opcode").
			WithContext("opcode", body[0])
	}
}

// RequestServerList sends the ServerList request and parses the response.
func (lc *LoginClient) RequestServerList() error {
	payload := make([]byte, 9)
	payload[0] = opServerListReq
	binary.LittleEndian.PutUint32(payload[1:], lc.LoginKey1)
	binary.LittleEndian.PutUint32(payload[5:], lc.LoginKey2)
	if err := lc.send(payload); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.server_list", err)
	}

	body, err := lc.recv()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.server_list", err)
	}
	if len(body) < 2 || body[0] != opServerList {
		return apperrors.New(apperrors.KindProtocol, "client.login.server_list", "unexpected opcode").
			WithContext("opcode", firstByte(body))
	}

	count := int(body[1])
	const entrySize = 21
	const entriesStart = 3
	needed := entriesStart + count*entrySize
	if len(body) < needed {
		return apperrors.New(apperrors.KindFormat, "client.login.server_list", "server list truncated").
			WithContext("count", count, "need", needed, "have", len(body))
	}

	lc.Servers = make([]ServerInfo, count)
	for i := range count {
		off := entriesStart + i*entrySize
		lc.Servers[i] = ServerInfo{
			ID:         body[off],
			IP:         fmt.Sprintf("%d.%d.%d.%d", body[off+1], body[off+2], body[off+3], body[off+4]),
			Port:       binary.LittleEndian.Uint32(body[off+5:]),
			CurPlayers: binary.LittleEndian.Uint16(body[off+11:]),
			MaxPlayers: binary.LittleEndian.Uint16(body[off+13:]),
			Status:     body[off+15],
		}
	}
	return nil
}

// SelectServer requests play keys for serverID and expects PlayOk or
// PlayFail.
func (lc *LoginClient) SelectServer(serverID byte) error {
	payload := make([]byte, 10)
	payload[0] = opSelectServer
	binary.LittleEndian.PutUint32(payload[1:], lc.LoginKey1)
	binary.LittleEndian.PutUint32(payload[5:], lc.LoginKey2)
	payload[9] = serverID
	if err := lc.send(payload); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.select_server", err)
	}

	body, err := lc.recv()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.login.select_server", err)
	}
	if len(body) == 0 {
		return apperrors.New(apperrors.KindProtocol, "client.login.select_server", "empty response")
	}

	switch body[0] {
	case opPlayFail:
		return apperrors.New(apperrors.KindProtocol, "client.login.select_server", "play failed").
			WithContext("reason", firstByte(body[1:]))
	case opPlayOk:
		if len(body) < 9 {
			return apperrors.New(apperrors.KindFormat, "client.login.select_server", "play ok body too short")
		}
		lc.PlayKey1 = binary.LittleEndian.Uint32(body[1:])
		lc.PlayKey2 = binary.LittleEndian.Uint32(body[5:])
		return nil
	default:
		return apperrors.New(apperrors.KindProtocol, "client.login.select_server", "unexpected opcode").
			WithContext("opcode", body[0])
	}
}

func firstByte(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	return int(b[0])
}
