package client

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/la2geo/geoharvest/internal/crypto"
)

func newTestGameClient(conn net.Conn) *GameClient {
	return &GameClient{
		conn:      conn,
		geodataCh: make(chan string, geodataQueueCapacity),
		sysCh:     make(chan string, sysQueueCapacity),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// serverWriteGameFrame mirrors GameClient.writeFrame for the fake server side.
func serverWriteGameFrame(t *testing.T, conn net.Conn, crypt *crypto.GameCrypt, payload []byte) {
	t.Helper()
	if crypt != nil {
		crypt.Encrypt(payload)
	}
	header := make([]byte, 2)
	binary.LittleEndian.PutUint16(header, uint16(len(payload)+2))
	_, err := conn.Write(header)
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

// serverReadGameFrame mirrors GameClient.readFrame for the fake server side.
func serverReadGameFrame(t *testing.T, conn net.Conn, crypt *crypto.GameCrypt) []byte {
	t.Helper()
	header := make([]byte, 2)
	_, err := readFull(conn, header)
	require.NoError(t, err)
	total := int(binary.LittleEndian.Uint16(header))
	body := make([]byte, total-2)
	_, err = readFull(conn, body)
	require.NoError(t, err)
	if crypt != nil {
		crypt.Decrypt(body)
	}
	return body
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestAuthToGameSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	gc := newTestGameClient(clientConn)
	xorKey := []byte("fedcba9876543210")
	serverCrypt := crypto.NewGameCrypt()
	serverCrypt.SetKey(xorKey)

	done := make(chan struct{})
	go func() {
		defer close(done)

		// ProtocolVersion, unencrypted.
		protoReq := serverReadGameFrame(t, serverConn, nil)
		require.Equal(t, byte(opProtocolVersion), protoReq[0])

		// KeyPacket, unencrypted wire but first Encrypt call flips the cipher on.
		keyPkt := make([]byte, 18)
		keyPkt[0] = opKeyPacket
		keyPkt[1] = 0x01
		copy(keyPkt[2:], xorKey)
		serverWriteGameFrame(t, serverConn, serverCrypt, keyPkt)

		// AuthLogin, now encrypted both ways.
		authReq := serverReadGameFrame(t, serverConn, serverCrypt)
		require.Equal(t, byte(opAuthLoginGame), authReq[0])

		resp := make([]byte, 5)
		resp[0] = opCharSelectInfo
		binary.LittleEndian.PutUint32(resp[1:], 2)
		serverWriteGameFrame(t, serverConn, serverCrypt, resp)
	}()

	count, err := gc.AuthToGame("tester", 1, 2, 3, 4)
	<-done
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NotNil(t, gc.crypt)
}

func TestAuthToGameRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	gc := newTestGameClient(clientConn)
	xorKey := []byte("0011223344556677")
	serverCrypt := crypto.NewGameCrypt()
	serverCrypt.SetKey(xorKey)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serverReadGameFrame(t, serverConn, nil)

		keyPkt := make([]byte, 18)
		keyPkt[0] = opKeyPacket
		keyPkt[1] = 0x01
		copy(keyPkt[2:], xorKey)
		serverWriteGameFrame(t, serverConn, serverCrypt, keyPkt)

		_ = serverReadGameFrame(t, serverConn, serverCrypt)
		serverWriteGameFrame(t, serverConn, serverCrypt, []byte{opActionFailed})
	}()

	_, err := gc.AuthToGame("tester", 1, 2, 3, 4)
	<-done
	require.Error(t, err)
}

func TestCreateCharacterSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	gc := newTestGameClient(clientConn)
	gc.crypt = crypto.NewGameCrypt()
	gc.crypt.SetKey([]byte("aaaaaaaaaaaaaaaa"))
	gc.crypt.ForceEnable()
	serverCrypt := crypto.NewGameCrypt()
	serverCrypt.SetKey([]byte("aaaaaaaaaaaaaaaa"))
	serverCrypt.ForceEnable()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := serverReadGameFrame(t, serverConn, serverCrypt)
		require.Equal(t, byte(opNewCharacter), req[0])
		serverWriteGameFrame(t, serverConn, serverCrypt, []byte{opCharTemplates})

		req = serverReadGameFrame(t, serverConn, serverCrypt)
		require.Equal(t, byte(opCharacterCreate), req[0])
		serverWriteGameFrame(t, serverConn, serverCrypt, []byte{opCharCreateOk})

		resp := make([]byte, 5)
		resp[0] = opCharSelectInfo
		binary.LittleEndian.PutUint32(resp[1:], 1)
		serverWriteGameFrame(t, serverConn, serverCrypt, resp)
	}()

	err := gc.CreateCharacter("Newbie", 0x00, 0, 0, 0, 0)
	<-done
	require.NoError(t, err)
}

func TestCreateCharacterFailure(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	gc := newTestGameClient(clientConn)
	gc.crypt = crypto.NewGameCrypt()
	gc.crypt.SetKey([]byte("bbbbbbbbbbbbbbbb"))
	gc.crypt.ForceEnable()
	serverCrypt := crypto.NewGameCrypt()
	serverCrypt.SetKey([]byte("bbbbbbbbbbbbbbbb"))
	serverCrypt.ForceEnable()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serverReadGameFrame(t, serverConn, serverCrypt)
		serverWriteGameFrame(t, serverConn, serverCrypt, []byte{opCharTemplates})

		_ = serverReadGameFrame(t, serverConn, serverCrypt)
		resp := make([]byte, 5)
		resp[0] = opCharCreateFail
		binary.LittleEndian.PutUint32(resp[1:], 2)
		serverWriteGameFrame(t, serverConn, serverCrypt, resp)
	}()

	err := gc.CreateCharacter("Dup", 0x00, 0, 0, 0, 0)
	<-done
	require.Error(t, err)
}

func TestSelectAndEnterSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	gc := newTestGameClient(clientConn)
	gc.crypt = crypto.NewGameCrypt()
	gc.crypt.SetKey([]byte("cccccccccccccccc"))
	gc.crypt.ForceEnable()
	serverCrypt := crypto.NewGameCrypt()
	serverCrypt.SetKey([]byte("cccccccccccccccc"))
	serverCrypt.ForceEnable()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := serverReadGameFrame(t, serverConn, serverCrypt)
		require.Equal(t, byte(opCharacterSelect), req[0])

		resp := make([]byte, 0, 32)
		resp = append(resp, opCharSelected)
		resp = append(resp, utf16leNullTerminated("Hero")...)
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, 777)
		resp = append(resp, tmp...)
		serverWriteGameFrame(t, serverConn, serverCrypt, resp)

		req = serverReadGameFrame(t, serverConn, serverCrypt)
		require.Equal(t, byte(opEnterWorld), req[0])

		userInfo := make([]byte, 17)
		userInfo[0] = opUserInfo
		serverWriteGameFrame(t, serverConn, serverCrypt, userInfo)
	}()

	err := gc.SelectAndEnter(0)
	<-done
	require.NoError(t, err)
	require.Equal(t, "Hero", gc.Name())
	require.Equal(t, uint32(777), gc.ObjectID())
}

func TestHasGeodataPrefix(t *testing.T) {
	require.True(t, hasGeodataPrefix("GEODATA|1|2|3"))
	require.True(t, hasGeodataPrefix("GEODATA_CHECK|abc"))
	require.False(t, hasGeodataPrefix("hello there"))
}

func TestDispatchUserInfoUpdatesPosition(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	gc := newTestGameClient(clientConn)

	body := make([]byte, 17)
	body[0] = opUserInfo
	binary.LittleEndian.PutUint32(body[1:], 100)
	binary.LittleEndian.PutUint32(body[5:], 200)
	binary.LittleEndian.PutUint32(body[9:], 300)
	binary.LittleEndian.PutUint32(body[13:], 400)

	gc.dispatch(body)
	x, y, z, heading := gc.Position()
	require.Equal(t, int32(100), x)
	require.Equal(t, int32(200), y)
	require.Equal(t, int32(300), z)
	require.Equal(t, int32(400), heading)
}

func TestHandleCreatureSayRoutesGeodataQueueBuffered(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	gc := newTestGameClient(clientConn)

	w := buildCreatureSay(1, 0, "sender", "GEODATA|5|6|abc123")
	gc.dispatch(w)

	select {
	case msg := <-gc.geodataCh:
		require.Equal(t, "GEODATA|5|6|abc123", msg)
	default:
		t.Fatal("expected geodata message to be queued")
	}
}

func TestHandleCreatureSayRoutesGenericQueue(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	gc := newTestGameClient(clientConn)

	w := buildCreatureSay(1, 0, "sender", "welcome to town")
	gc.dispatch(w)

	select {
	case msg := <-gc.sysCh:
		require.Equal(t, "welcome to town", msg)
	default:
		t.Fatal("expected generic message to be queued")
	}
}

func TestDrainGeodataQueueEmptiesPending(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	gc := newTestGameClient(clientConn)

	gc.geodataCh <- "stale"
	gc.DrainGeodataQueue()
	require.Len(t, gc.geodataCh, 0)
}

// buildCreatureSay constructs a minimal CreatureSay body:
// opcode, objectId(u32), messageType(u32), senderName(utf16), text(utf16).
func buildCreatureSay(objectID, msgType uint32, sender, text string) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, opCreatureSay)
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, objectID)
	buf = append(buf, tmp...)
	binary.LittleEndian.PutUint32(tmp, msgType)
	buf = append(buf, tmp...)
	buf = append(buf, utf16leNullTerminated(sender)...)
	buf = append(buf, utf16leNullTerminated(text)...)
	return buf
}

func utf16leNullTerminated(s string) []byte {
	out := make([]byte, 0, len(s)*2+2)
	for _, r := range s {
		tmp := make([]byte, 2)
		binary.LittleEndian.PutUint16(tmp, uint16(r))
		out = append(out, tmp...)
	}
	out = append(out, 0, 0)
	return out
}
