package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/crypto"
	"github.com/la2geo/geoharvest/internal/wire"
)

// Game-server opcodes.
const (
	opProtocolVersion = 0x00
	opKeyPacket       = 0x00
	opAuthLoginGame   = 0x08
	opCharSelectInfo  = 0x13
	opActionFailed    = 0x25
	opNewCharacter    = 0x0E
	opCharTemplates   = 0x17
	opCharacterCreate = 0x0B
	opCharCreateOk    = 0x19
	opCharCreateFail  = 0x1A
	opCharacterSelect = 0x0D
	opCharSelected    = 0x15
	opEnterWorld      = 0x03
	opUserInfo        = 0x04
	opMoveToLocation  = 0x01
	opTeleport        = 0x28
	opStopMove        = 0x47
	opValidateLoc     = 0x61
	opSetToLocation   = 0x76
	opCreatureSay     = 0x4A
	opAdminCommand    = 0x5B
)

const protocolVersion = 746

// sysQueueCapacity bounds the generic system-message queue; oldest messages
// are dropped once full.
const sysQueueCapacity = 100

// geodataQueueCapacity is generous: the harvester drains stale entries
// before each scan and waits for exactly one response per row.
const geodataQueueCapacity = 8

// GameClient drives the game-server handshake (Connect -> AuthLogin ->
// Enumerate -> CharacterCreate/SelectChar -> EnterWorld) and, once in
// world, dispatches inbound opcodes to position updates or message queues.
type GameClient struct {
	conn net.Conn
	crypt *crypto.GameCrypt

	mu       sync.Mutex
	objectID uint32
	x, y, z  int32
	heading  int32
	name     string

	Characters []CharacterSlot

	geodataCh chan string
	sysCh     chan string

	stop   chan struct{}
	stopped sync.Once
	done   chan struct{}
}

// ConnectGame opens the TCP connection to a game server. The handshake
// proper (ProtocolVersion/KeyPacket/AuthLogin) is driven by AuthToGame.
func ConnectGame(ctx context.Context, host string, port uint32) (*GameClient, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "client.game.connect", err).WithContext("addr", addr)
	}
	return &GameClient{
		conn:      conn,
		geodataCh: make(chan string, geodataQueueCapacity),
		sysCh:     make(chan string, sysQueueCapacity),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (gc *GameClient) Close() error {
	gc.stopped.Do(func() { close(gc.stop) })
	return gc.conn.Close()
}

func (gc *GameClient) Position() (x, y, z, heading int32) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.x, gc.y, gc.z, gc.heading
}

func (gc *GameClient) ObjectID() uint32 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.objectID
}

func (gc *GameClient) Name() string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.name
}

// writeFrame writes a 2-byte LE length prefix followed by payload,
// XOR-encrypting payload first if the game cipher has been installed.
func (gc *GameClient) writeFrame(payload []byte) error {
	if gc.crypt != nil {
		gc.crypt.Encrypt(payload)
	}
	var header [2]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(payload)+2))
	if _, err := gc.conn.Write(header[:]); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.write_frame", err)
	}
	if _, err := gc.conn.Write(payload); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.write_frame", err)
	}
	return nil
}

// readFrame reads one frame, decrypting it in-place if the cipher is
// installed. A zero-length body (length == 2) returns an empty slice.
func (gc *GameClient) readFrame() ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(gc.conn, header[:]); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "client.game.read_frame", err)
	}
	total := int(binary.LittleEndian.Uint16(header[:]))
	if total < 2 {
		return nil, apperrors.New(apperrors.KindFormat, "client.game.read_frame", "invalid frame length").
			WithContext("length", total)
	}
	if total == 2 {
		return nil, nil
	}
	body := make([]byte, total-2)
	if _, err := io.ReadFull(gc.conn, body); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "client.game.read_frame", err)
	}
	if gc.crypt != nil {
		gc.crypt.Decrypt(body)
	}
	return body, nil
}

// AuthToGame runs ProtocolVersion -> KeyPacket -> AuthLogin -> CharSelectInfo
// and returns the account's character count.
func (gc *GameClient) AuthToGame(loginName string, loginKey1, loginKey2, playKey1, playKey2 uint32) (int, error) {
	gc.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer gc.conn.SetDeadline(time.Time{})

	w := wire.NewWriter(8)
	w.WriteByte(opProtocolVersion)
	w.WriteInt16(int16(protocolVersion))
	if err := gc.writeFrame(w.Bytes()); err != nil {
		return -1, apperrors.Wrap(apperrors.KindIO, "client.game.auth", err)
	}

	body, err := gc.readFrame()
	if err != nil {
		return -1, apperrors.Wrap(apperrors.KindIO, "client.game.auth", err)
	}
	if len(body) < 18 || body[0] != opKeyPacket {
		return -1, apperrors.New(apperrors.KindProtocol, "client.game.auth", "expected key packet").
			WithContext("opcode", firstByte(body))
	}
	if body[1] != 0x01 {
		return -1, apperrors.New(apperrors.KindProtocol, "client.game.auth", "key packet rejected").
			WithContext("flag", body[1])
	}
	xorKey := body[2:18]

	gc.crypt = crypto.NewGameCrypt()
	gc.crypt.SetKey(xorKey)
	gc.crypt.ForceEnable()

	aw := wire.NewWriter(64)
	aw.WriteByte(opAuthLoginGame)
	aw.WriteString(loginNameLower(loginName))
	aw.WriteUint32(playKey2)
	aw.WriteUint32(playKey1)
	aw.WriteUint32(loginKey1)
	aw.WriteUint32(loginKey2)
	if err := gc.writeFrame(aw.Bytes()); err != nil {
		return -1, apperrors.Wrap(apperrors.KindIO, "client.game.auth", err)
	}

	body, err = gc.readFrame()
	if err != nil {
		return -1, apperrors.Wrap(apperrors.KindIO, "client.game.auth", err)
	}
	if len(body) == 0 {
		return -1, apperrors.New(apperrors.KindProtocol, "client.game.auth", "empty auth response")
	}
	if body[0] == opActionFailed {
		return -1, apperrors.New(apperrors.KindProtocol, "client.game.auth", "action failed, auth rejected")
	}
	if body[0] != opCharSelectInfo {
		return -1, apperrors.New(apperrors.KindProtocol, "client.game.auth", "expected CharSelectInfo").
			WithContext("opcode", body[0])
	}
	if len(body) < 5 {
		return -1, apperrors.New(apperrors.KindFormat, "client.game.auth", "char select info too short")
	}
	count := int(binary.LittleEndian.Uint32(body[1:]))
	gc.Characters = parseCharacterList(body, count)
	return count, nil
}

func loginNameLower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// parseCharacterList extracts names using the fixed ~200-byte stride
// approximation; see DESIGN.md's Open Question decision.
func parseCharacterList(body []byte, count int) []CharacterSlot {
	slots := make([]CharacterSlot, 0, count)
	offset := 5
	for i := range count {
		name, consumed, ok := decodeUTF16String(body, offset)
		if !ok {
			break
		}
		slots = append(slots, CharacterSlot{Slot: i, Name: name})
		offset += consumed + charRecordStride
	}
	return slots
}

// decodeUTF16String reads a null-terminated UTF-16LE string starting at
// offset, tolerating truncation (no trailing null found) by decoding
// whatever is available.
func decodeUTF16String(data []byte, offset int) (string, int, bool) {
	if offset >= len(data) {
		return "", 0, false
	}
	end := offset
	for end+1 < len(data) {
		if data[end] == 0 && data[end+1] == 0 {
			break
		}
		end += 2
	}
	units := make([]uint16, 0, (end-offset)/2)
	for p := offset; p+1 < len(data) && p < end; p += 2 {
		units = append(units, binary.LittleEndian.Uint16(data[p:]))
	}
	return string(utf16.Decode(units)), end + 2 - offset, true
}

// CreateCharacter requests templates, then submits CharacterCreate.
func (gc *GameClient) CreateCharacter(name string, classID int32, sex, hairStyle, hairColor, face int32) error {
	tw := wire.NewWriter(1)
	tw.WriteByte(opNewCharacter)
	if err := gc.writeFrame(tw.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.create_character", err)
	}
	// CharTemplates is optional; some servers skip it, so the read is
	// bounded and its error ignored.
	gc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, _ = gc.readFrame()
	gc.conn.SetReadDeadline(time.Time{})

	stats, resolvedClass := lookupBaseStats(classID)

	cw := wire.NewWriter(64)
	cw.WriteByte(opCharacterCreate)
	cw.WriteString(name)
	cw.WriteInt32(stats.Race)
	cw.WriteInt32(sex)
	cw.WriteInt32(resolvedClass)
	cw.WriteInt32(stats.INT)
	cw.WriteInt32(stats.STR)
	cw.WriteInt32(stats.CON)
	cw.WriteInt32(stats.MEN)
	cw.WriteInt32(stats.DEX)
	cw.WriteInt32(stats.WIT)
	cw.WriteInt32(hairStyle)
	cw.WriteInt32(hairColor)
	cw.WriteInt32(face)
	if err := gc.writeFrame(cw.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.create_character", err)
	}

	body, err := gc.readFrame()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.create_character", err)
	}
	if len(body) == 0 {
		return apperrors.New(apperrors.KindProtocol, "client.game.create_character", "no response")
	}

	switch body[0] {
	case opCharCreateOk:
		body, err = gc.readFrame()
		if err == nil && len(body) >= 5 && body[0] == opCharSelectInfo {
			count := int(binary.LittleEndian.Uint32(body[1:]))
			gc.Characters = parseCharacterList(body, count)
		}
		return nil
	case opCharCreateFail:
		reason := uint32(0xFFFFFFFF)
		if len(body) >= 5 {
			reason = binary.LittleEndian.Uint32(body[1:])
		}
		return apperrors.New(apperrors.KindProtocol, "client.game.create_character", "character creation failed").
			WithContext("reason", reason)
	default:
		return apperrors.New(apperrors.KindProtocol, "client.game.create_character", "unexpected opcode").
			WithContext("opcode", body[0])
	}
}

// SelectAndEnter selects charSlot, enters the world, and waits (up to 10s)
// for UserInfo. A timeout here is non-fatal: the session is still usable.
func (gc *GameClient) SelectAndEnter(charSlot int32) error {
	sw := wire.NewWriter(20)
	sw.WriteByte(opCharacterSelect)
	sw.WriteInt32(charSlot)
	sw.WriteUint16(0)
	sw.WriteUint32(0)
	sw.WriteUint32(0)
	sw.WriteUint32(0)
	if err := gc.writeFrame(sw.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.select_and_enter", err)
	}

	body, err := gc.readFrame()
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.select_and_enter", err)
	}
	if len(body) > 0 && body[0] == opCharSelected {
		name, consumed, _ := decodeUTF16String(body, 1)
		gc.mu.Lock()
		gc.name = name
		gc.objectID = binary.LittleEndian.Uint32(body[1+consumed:])
		gc.mu.Unlock()
	}

	ew := wire.NewWriter(1)
	ew.WriteByte(opEnterWorld)
	if err := gc.writeFrame(ew.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "client.game.select_and_enter", err)
	}

	gc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer gc.conn.SetReadDeadline(time.Time{})

	for {
		body, err := gc.readFrame()
		if err != nil {
			return nil // timeout reading init packets is non-fatal
		}
		if len(body) == 0 {
			continue
		}
		gc.dispatch(body)
		if body[0] == opUserInfo {
			return nil
		}
	}
}

// StartDispatchLoop begins a background goroutine reading frames and
// routing them to position updates or message queues until Close is called.
func (gc *GameClient) StartDispatchLoop() {
	go func() {
		defer close(gc.done)
		gc.conn.SetReadDeadline(time.Now().Add(time.Second))
		for {
			select {
			case <-gc.stop:
				return
			default:
			}
			body, err := gc.readFrame()
			if err != nil {
				if ne, ok := err.(*apperrors.Error); ok && apperrors.IsKind(ne, apperrors.KindIO) {
					if isTimeout(ne) {
						gc.conn.SetReadDeadline(time.Now().Add(time.Second))
						continue
					}
				}
				return
			}
			gc.conn.SetReadDeadline(time.Now().Add(time.Second))
			if len(body) == 0 {
				continue
			}
			gc.dispatch(body)
		}
	}()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	for err != nil {
		if t, ok := err.(timeouter); ok {
			return t.Timeout()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (gc *GameClient) dispatch(body []byte) {
	switch body[0] {
	case opUserInfo:
		if len(body) < 17 {
			return
		}
		gc.mu.Lock()
		gc.x = int32(binary.LittleEndian.Uint32(body[1:]))
		gc.y = int32(binary.LittleEndian.Uint32(body[5:]))
		gc.z = int32(binary.LittleEndian.Uint32(body[9:]))
		gc.heading = int32(binary.LittleEndian.Uint32(body[13:]))
		gc.mu.Unlock()

	case opTeleport, opValidateLoc, opSetToLocation:
		if len(body) < 17 {
			return
		}
		objID := binary.LittleEndian.Uint32(body[1:])
		gc.mu.Lock()
		if objID == gc.objectID {
			gc.x = int32(binary.LittleEndian.Uint32(body[5:]))
			gc.y = int32(binary.LittleEndian.Uint32(body[9:]))
			gc.z = int32(binary.LittleEndian.Uint32(body[13:]))
			if body[0] != opSetToLocation && len(body) >= 21 {
				gc.heading = int32(binary.LittleEndian.Uint32(body[17:]))
			}
		}
		gc.mu.Unlock()

	case opStopMove:
		if len(body) < 21 {
			return
		}
		objID := binary.LittleEndian.Uint32(body[1:])
		gc.mu.Lock()
		if objID == gc.objectID {
			gc.x = int32(binary.LittleEndian.Uint32(body[5:]))
			gc.y = int32(binary.LittleEndian.Uint32(body[9:]))
			gc.z = int32(binary.LittleEndian.Uint32(body[13:]))
			gc.heading = int32(binary.LittleEndian.Uint32(body[17:]))
		}
		gc.mu.Unlock()

	case opCreatureSay:
		gc.handleCreatureSay(body)
	}
}

func (gc *GameClient) handleCreatureSay(body []byte) {
	offset := 1 + 4 + 4 // opcode, objectId, messageType
	_, consumed, ok := decodeUTF16String(body, offset)
	if !ok {
		return
	}
	offset += consumed
	text, _, ok := decodeUTF16String(body, offset)
	if !ok {
		return
	}

	if hasGeodataPrefix(text) {
		select {
		case gc.geodataCh <- text:
		default:
		}
		return
	}
	select {
	case gc.sysCh <- text:
	default:
		// drop oldest, then retry once
		select {
		case <-gc.sysCh:
		default:
		}
		select {
		case gc.sysCh <- text:
		default:
		}
	}
}

func hasGeodataPrefix(s string) bool {
	const p1, p2 = "GEODATA|", "GEODATA_CHECK|"
	return len(s) >= len(p1) && s[:len(p1)] == p1 ||
		len(s) >= len(p2) && s[:len(p2)] == p2
}

// DrainGeodataQueue discards any stale entries before a new scan.
func (gc *GameClient) DrainGeodataQueue() {
	for {
		select {
		case <-gc.geodataCh:
		default:
			return
		}
	}
}

// RecvGeodata waits up to timeout for one GEODATA|... message.
func (gc *GameClient) RecvGeodata(timeout time.Duration) (string, error) {
	select {
	case msg := <-gc.geodataCh:
		return msg, nil
	case <-time.After(timeout):
		return "", apperrors.New(apperrors.KindTimeout, "client.game.recv_geodata", "timed out waiting for scan_geo response")
	}
}

// SendAdminCommand issues a GM console command (opcode 0x5B).
func (gc *GameClient) SendAdminCommand(command string) error {
	w := wire.NewWriter(len(command)*2 + 4)
	w.WriteByte(opAdminCommand)
	w.WriteString(command)
	return gc.writeFrame(w.Bytes())
}
