package tcp

import (
	"bytes"
	"net"
	"testing"

	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/pkg/errors"
)

type fakeEndpoint struct {
	writes    [][]byte
	full      bool
	paused    bool
	ended     bool
	destroyed bool
	addr      net.Addr
}

func (f *fakeEndpoint) Write(b []byte) bool {
	f.writes = append(f.writes, b)
	return !f.full
}

func (f *fakeEndpoint) Pause()  { f.paused = true }
func (f *fakeEndpoint) Resume() { f.paused = false }
func (f *fakeEndpoint) End()    { f.ended = true }
func (f *fakeEndpoint) Destroy() {
	f.destroyed = true
}

func (f *fakeEndpoint) LocalAddr() net.Addr {
	return f.addr
}

func (f *fakeEndpoint) written() []byte {
	return bytes.Join(f.writes, nil)
}

type relayFixture struct {
	relay   *Relay
	client  *fakeEndpoint
	dialed  []string
	done    int
	keyring *encrypt.Keyring
	mode    encrypt.Mode
}

func newRelayFixture(t *testing.T, role Role, method string) *relayFixture {
	mode, err := encrypt.ParseMode(method)
	if err != nil {
		t.Fatalf("failed to parse method: %s", err)
	}

	f := &relayFixture{
		client:  &fakeEndpoint{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1080}},
		keyring: encrypt.NewKeyring(),
		mode:    mode,
	}

	encryptor, err := encrypt.NewEncryptor(f.keyring, "secret", mode)
	if err != nil {
		t.Fatalf("failed to create encryptor: %s", err)
	}

	f.relay = NewRelay(&RelayConfig{
		ID:        "test",
		Role:      role,
		Encryptor: encryptor,
		Client:    f.client,
		Dial: func(address string) {
			f.dialed = append(f.dialed, address)
		},
		Upstream: func() string {
			return "10.0.0.1:8388"
		},
		OnDone: func() {
			f.done++
		},
	})
	return f
}

// peer is the encryptor on the other end of the wire.
func (f *relayFixture) peer(t *testing.T) *encrypt.Encryptor {
	e, err := encrypt.NewEncryptor(f.keyring, "secret", f.mode)
	if err != nil {
		t.Fatalf("failed to create peer encryptor: %s", err)
	}
	return e
}

func TestLocalRelayConnect(t *testing.T) {
	f := newRelayFixture(t, RoleLocal, "aes-256-cfb")

	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x01, 0x00}})
	if !bytes.Equal(f.client.written(), []byte{0x05, 0x00}) {
		t.Fatalf("expect greeting reply, but got %v", f.client.written())
	}
	if f.relay.Stage() != StageAuthSent {
		t.Fatalf("expect stage %d, but got %d", StageAuthSent, f.relay.Stage())
	}

	request := []byte{0x05, 0x01, 0x00, 0x01, 93, 184, 216, 34, 0x00, 0x50}
	f.relay.Handle(dataEvent{SideClient, append(request, "GET /"...)})

	if len(f.dialed) != 1 || f.dialed[0] != "10.0.0.1:8388" {
		t.Fatalf("expect a dial to the upstream, but got %v", f.dialed)
	}
	if f.relay.Stage() != StageConnecting {
		t.Fatalf("expect stage %d, but got %d", StageConnecting, f.relay.Stage())
	}
	reply := f.client.writes[1]
	if !bytes.Equal(reply, []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0x08, 0xae}) {
		t.Fatalf("unexpected connect reply %v", reply)
	}

	// body sent before the upstream connects is held
	f.relay.Handle(dataEvent{SideClient, []byte(" HTTP/1.1")})

	remote := &fakeEndpoint{}
	f.relay.Handle(connectedEvent{remote})
	if f.relay.Stage() != StageStreaming {
		t.Fatalf("expect stage %d, but got %d", StageStreaming, f.relay.Stage())
	}

	server := f.peer(t)
	plain, err := server.Decrypt(remote.written())
	if err != nil {
		t.Fatalf("failed to decrypt: %s", err)
	}
	expected := append([]byte{0x01, 93, 184, 216, 34, 0x00, 0x50}, "GET / HTTP/1.1"...)
	if !bytes.Equal(plain, expected) {
		t.Fatalf("upstream bytes not match, expect %v, but got %v", expected, plain)
	}

	response, _ := server.Encrypt([]byte("HTTP/1.1 200 OK"))
	f.relay.Handle(dataEvent{SideRemote, response[:5]})
	f.relay.Handle(dataEvent{SideRemote, response[5:]})
	if got := bytes.Join(f.client.writes[2:], nil); string(got) != "HTTP/1.1 200 OK" {
		t.Fatalf("expect decrypted response, but got %q", got)
	}
}

func TestLocalRelayUnsupportedCommand(t *testing.T) {
	f := newRelayFixture(t, RoleLocal, "table")

	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x01, 0x00}})
	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x02, 0x00, 0x01, 1, 2, 3, 4, 0, 80}})

	if !bytes.Equal(f.client.writes[1], []byte{0x05, 0x07, 0x00, 0x01}) {
		t.Fatalf("expect command not supported reply, but got %v", f.client.writes[1])
	}
	if !f.client.ended || !f.relay.Done() || f.done != 1 {
		t.Fatalf("expect the connection to be ended once")
	}
	if len(f.dialed) != 0 {
		t.Fatalf("expect no dial, but got %v", f.dialed)
	}
}

func TestLocalRelayUDPAssociate(t *testing.T) {
	f := newRelayFixture(t, RoleLocal, "table")

	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x01, 0x00}})
	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x03, 0x00, 0x01, 0, 0, 0, 0, 0, 0}})

	expected := []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0x04, 0x38}
	if !bytes.Equal(f.client.writes[1], expected) {
		t.Fatalf("expect associate reply %v, but got %v", expected, f.client.writes[1])
	}
	if f.relay.Stage() != StageUDPAssociate {
		t.Fatalf("expect stage %d, but got %d", StageUDPAssociate, f.relay.Stage())
	}

	f.relay.Handle(dataEvent{SideClient, []byte("ignored")})
	if len(f.client.writes) != 2 || len(f.dialed) != 0 || f.relay.Done() {
		t.Fatalf("expect a parked association")
	}
}

func TestLocalRelaySplitRequest(t *testing.T) {
	f := newRelayFixture(t, RoleLocal, "rc4-md5")

	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x01, 0x00}})
	f.relay.Handle(dataEvent{SideClient, []byte{0x05, 0x01, 0x00, 0x03, 11, 'e', 'x', 'a'}})
	if len(f.dialed) != 0 {
		t.Fatalf("expect no dial before the request is complete")
	}

	f.relay.Handle(dataEvent{SideClient, []byte{'m', 'p', 'l', 'e', '.', 'c', 'o', 'm', 0x01, 0xbb}})
	if len(f.dialed) != 1 {
		t.Fatalf("expect a dial once the request is complete")
	}
	if f.relay.Target().String() != "example.com:443" {
		t.Fatalf("expect target example.com:443, but got %s", f.relay.Target())
	}
}

func TestServerRelayConnect(t *testing.T) {
	f := newRelayFixture(t, RoleServer, "chacha20-ietf")
	local := f.peer(t)

	wire, _ := local.Encrypt(append([]byte{0x01, 93, 184, 216, 34, 0x00, 0x50}, "GET"...))

	// the header arrives split inside the iv
	f.relay.Handle(dataEvent{SideClient, wire[:4]})
	if len(f.dialed) != 0 {
		t.Fatalf("expect no dial before the header is complete")
	}
	f.relay.Handle(dataEvent{SideClient, wire[4:]})

	if len(f.dialed) != 1 || f.dialed[0] != "93.184.216.34:80" {
		t.Fatalf("expect a dial to the target, but got %v", f.dialed)
	}
	if !f.client.paused {
		t.Fatalf("expect client reads paused while connecting")
	}

	more, _ := local.Encrypt([]byte(" /"))
	f.relay.Handle(dataEvent{SideClient, more})

	remote := &fakeEndpoint{}
	f.relay.Handle(connectedEvent{remote})

	if string(remote.written()) != "GET /" {
		t.Fatalf("expect buffered body flushed in order, but got %q", remote.written())
	}
	if f.client.paused {
		t.Fatalf("expect client reads resumed after connect")
	}

	f.relay.Handle(dataEvent{SideRemote, []byte("pong")})
	reply, err := local.Decrypt(f.client.written())
	if err != nil {
		t.Fatalf("failed to decrypt: %s", err)
	}
	if string(reply) != "pong" {
		t.Fatalf("expect pong, but got %q", reply)
	}
}

func TestServerRelayLongestHeader(t *testing.T) {
	f := newRelayFixture(t, RoleServer, "table")
	local := f.peer(t)

	domain := bytes.Repeat([]byte{'a'}, 255)
	header := append(append([]byte{0x03, 255}, domain...), 0x00, 0x50)
	wire, _ := local.Encrypt(header)

	for i := range wire {
		if len(f.dialed) != 0 {
			t.Fatalf("expect no dial before byte %d of the header", i)
		}
		f.relay.Handle(dataEvent{SideClient, wire[i : i+1]})
	}

	if len(f.dialed) != 1 || f.dialed[0] != string(domain)+":80" {
		t.Fatalf("expect a dial to the %d byte domain, but got %v", len(domain), f.dialed)
	}
	if f.relay.Target().Length != 259 {
		t.Fatalf("expect header length 259, but got %d", f.relay.Target().Length)
	}
}

func TestServerRelayUnknownAddressType(t *testing.T) {
	f := newRelayFixture(t, RoleServer, "aes-128-cfb")
	local := f.peer(t)

	wire, _ := local.Encrypt([]byte{0x09, 1, 2, 3, 4, 0, 80})
	f.relay.Handle(dataEvent{SideClient, wire})

	if !f.client.destroyed || !f.relay.Done() {
		t.Fatalf("expect the connection to be destroyed")
	}
	if len(f.dialed) != 0 {
		t.Fatalf("expect no dial, but got %v", f.dialed)
	}
}

func streamingRelay(t *testing.T) (*relayFixture, *fakeEndpoint) {
	f := newRelayFixture(t, RoleServer, "table")
	local := f.peer(t)

	wire, _ := local.Encrypt([]byte{0x01, 127, 0, 0, 1, 0, 80})
	f.relay.Handle(dataEvent{SideClient, wire})

	remote := &fakeEndpoint{}
	f.relay.Handle(connectedEvent{remote})
	return f, remote
}

func TestRelayBackpressure(t *testing.T) {
	f, remote := streamingRelay(t)

	remote.full = true
	f.relay.Handle(dataEvent{SideClient, []byte("a")})
	if !f.client.paused {
		t.Fatalf("expect client paused when the remote is full")
	}
	if f.relay.up.State() != FlowBlocked {
		t.Fatalf("expect the upstream flow blocked, but got %s", f.relay.up.State())
	}

	// in flight before the pause took effect
	f.relay.Handle(dataEvent{SideClient, []byte("b")})
	if len(remote.writes) != 1 {
		t.Fatalf("expect no write while blocked, but got %d writes", len(remote.writes))
	}

	remote.full = false
	f.relay.Handle(drainEvent{SideRemote})
	if f.client.paused || f.relay.up.State() != FlowOpen {
		t.Fatalf("expect client resumed after drain")
	}
	if len(remote.writes) != 2 {
		t.Fatalf("expect backlog flushed after drain, but got %d writes", len(remote.writes))
	}

	// the other direction
	f.client.full = true
	f.relay.Handle(dataEvent{SideRemote, []byte("c")})
	if !remote.paused || f.relay.down.State() != FlowBlocked {
		t.Fatalf("expect remote paused when the client is full")
	}
	f.client.full = false
	f.relay.Handle(drainEvent{SideClient})
	if remote.paused {
		t.Fatalf("expect remote resumed after drain")
	}
}

func TestRelayClose(t *testing.T) {
	f, remote := streamingRelay(t)

	f.relay.Handle(closeEvent{SideClient, nil})
	if !remote.ended || remote.destroyed {
		t.Fatalf("expect a clean client end to end the remote")
	}
	if !f.relay.Done() || f.done != 1 {
		t.Fatalf("expect the relay done once")
	}

	f.relay.Handle(closeEvent{SideRemote, nil})
	if f.done != 1 {
		t.Fatalf("expect cleanup once, but got %d", f.done)
	}

	f, remote = streamingRelay(t)
	f.relay.Handle(closeEvent{SideRemote, errors.New("connection reset")})
	if !remote.destroyed || !f.client.destroyed {
		t.Fatalf("expect an error close to destroy both sides")
	}
}

func TestRelayTimeout(t *testing.T) {
	f, remote := streamingRelay(t)

	f.relay.Handle(timeoutEvent{})
	if !remote.destroyed || !f.client.destroyed || !f.relay.Done() {
		t.Fatalf("expect a timeout to destroy both sides")
	}
}

func TestRelayConnectFailure(t *testing.T) {
	f := newRelayFixture(t, RoleServer, "table")
	local := f.peer(t)

	wire, _ := local.Encrypt([]byte{0x01, 127, 0, 0, 1, 0, 80})
	f.relay.Handle(dataEvent{SideClient, wire})
	f.relay.Handle(connectFailedEvent{errors.New("connection refused")})

	if !f.client.destroyed || !f.relay.Done() {
		t.Fatalf("expect the client destroyed on connect failure")
	}

	late := &fakeEndpoint{}
	f.relay.Handle(connectedEvent{late})
	if !late.destroyed {
		t.Fatalf("expect a late remote to be destroyed")
	}
}
