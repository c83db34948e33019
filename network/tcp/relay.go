package tcp

import (
	"net"
	"strconv"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/go-zoox/shadowsocks/protocol"
	"github.com/pkg/errors"
)

type Role int

const (
	// RoleLocal accepts SOCKS5 clients and forwards to a server.
	RoleLocal Role = iota
	// RoleServer accepts encrypted streams and forwards to their targets.
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "local"
}

type Stage int

const (
	StageHandshake    Stage = 0
	StageAuthSent     Stage = 1
	StageConnecting   Stage = 4
	StageStreaming    Stage = 5
	StageUDPAssociate Stage = 10
	StageClosed       Stage = -1
)

type Side int

const (
	SideClient Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "client"
}

// Endpoint is one socket of a relayed connection.
type Endpoint interface {
	// Write queues b and returns false once the endpoint is full.
	Write(b []byte) bool
	Pause()
	Resume()
	End()
	Destroy()
	LocalAddr() net.Addr
}

type event interface{}

type dataEvent struct {
	side Side
	data []byte
}

type connectedEvent struct {
	remote Endpoint
}

type connectFailedEvent struct {
	err error
}

type drainEvent struct {
	side Side
}

// closeEvent carries a nil err when the side ended the stream cleanly.
type closeEvent struct {
	side Side
	err  error
}

type timeoutEvent struct{}

type RelayConfig struct {
	ID        string
	Role      Role
	Encryptor *encrypt.Encryptor
	Client    Endpoint
	// Dial starts connecting the remote side; the result arrives as a
	// connected or connect failed event.
	Dial func(address string)
	// Upstream picks the server address for a local relay.
	Upstream func() string
	OnDone   func()
}

// Relay is the state machine of one relayed TCP connection. It is not safe
// for concurrent use; one goroutine feeds it events.
type Relay struct {
	id        string
	role      Role
	stage     Stage
	encryptor *encrypt.Encryptor

	client Endpoint
	remote Endpoint
	up     *Flow
	down   *Flow

	// handshake bytes not yet parsed
	buffer []byte
	// request body held until the remote connects
	pending [][]byte
	target  *protocol.Address

	dial     func(address string)
	upstream func() string
	onDone   func()
	done     bool
}

func NewRelay(cfg *RelayConfig) *Relay {
	return &Relay{
		id:        cfg.ID,
		role:      cfg.Role,
		stage:     StageHandshake,
		encryptor: cfg.Encryptor,
		client:    cfg.Client,
		dial:      cfg.Dial,
		upstream:  cfg.Upstream,
		onDone:    cfg.OnDone,
	}
}

func (r *Relay) Stage() Stage {
	return r.stage
}

func (r *Relay) Done() bool {
	return r.done
}

func (r *Relay) Target() *protocol.Address {
	return r.target
}

func (r *Relay) Handle(ev event) {
	if r.done {
		// a connect that finished after the relay closed
		if e, ok := ev.(connectedEvent); ok {
			e.remote.Destroy()
		}
		return
	}

	switch e := ev.(type) {
	case dataEvent:
		if e.side == SideClient {
			r.onClientData(e.data)
		} else {
			r.onRemoteData(e.data)
		}
	case connectedEvent:
		r.onConnected(e.remote)
	case connectFailedEvent:
		logger.Errorf("[tcp][connection: %s] %v", r.id, e.err)
		r.destroy()
	case drainEvent:
		r.onDrain(e.side)
	case closeEvent:
		r.onClose(e.side, e.err)
	case timeoutEvent:
		logger.Debugf("[tcp][connection: %s] timeout", r.id)
		r.destroy()
	}
}

func (r *Relay) onClientData(data []byte) {
	if r.role == RoleServer {
		plain, err := r.encryptor.Decrypt(data)
		if err != nil {
			logger.Errorf("[tcp][connection: %s] failed to decrypt: %v", r.id, err)
			r.destroy()
			return
		}
		data = plain
	}

	switch r.stage {
	case StageHandshake:
		if r.role == RoleLocal {
			r.client.Write(protocol.GreetingReply())
			r.stage = StageAuthSent
			return
		}
		r.onServerHeader(data)
	case StageAuthSent:
		r.onSocksRequest(data)
	case StageConnecting:
		r.hold(data)
	case StageStreaming:
		if r.role == RoleLocal {
			data = r.encrypt(data)
			if data == nil {
				return
			}
		}
		r.up.Send(data)
	case StageUDPAssociate:
		// the TCP side of an association only keeps it alive
	}
}

func (r *Relay) onSocksRequest(data []byte) {
	r.buffer = append(r.buffer, data...)

	request, err := protocol.ParseRequest(r.buffer)
	if errors.Is(err, protocol.ErrTruncated) && len(r.buffer) < 3+protocol.MaxHeaderLength {
		return
	}
	if err != nil {
		logger.Errorf("[tcp][connection: %s] %v", r.id, err)
		r.destroy()
		return
	}

	buffer := r.buffer
	r.buffer = nil

	switch request.Command {
	case protocol.COMMAND_CONNECT:
		r.target = request.Address
		r.client.Write(protocol.ConnectReply())

		upstream := r.upstream()
		logger.Infof("[tcp][connection: %s] connecting %s via %s", r.id, r.target, upstream)

		r.stage = StageConnecting
		r.hold(buffer[3:request.Length])
		r.hold(buffer[request.Length:])
		if r.done {
			return
		}
		r.dial(upstream)
	case protocol.COMMAND_UDP_ASSOCIATE:
		bind, err := addressOf(r.client.LocalAddr())
		if err != nil {
			logger.Errorf("[tcp][connection: %s] %v", r.id, err)
			r.destroy()
			return
		}

		reply, err := protocol.AssociateReply(bind)
		if err != nil {
			logger.Errorf("[tcp][connection: %s] %v", r.id, err)
			r.destroy()
			return
		}

		logger.Debugf("[tcp][connection: %s] udp associate at %s", r.id, bind)
		r.client.Write(reply)
		r.stage = StageUDPAssociate
	default:
		logger.Errorf("[tcp][connection: %s] unsupported command: %d", r.id, request.Command)
		r.client.Write(protocol.CommandNotSupportedReply())
		r.end()
	}
}

func (r *Relay) onServerHeader(data []byte) {
	r.buffer = append(r.buffer, data...)

	addr, err := protocol.ParseHeader(r.buffer)
	if errors.Is(err, protocol.ErrTruncated) && len(r.buffer) < protocol.MaxHeaderLength {
		return
	}
	if err != nil {
		logger.Errorf("[tcp][connection: %s] %v", r.id, err)
		r.destroy()
		return
	}

	r.target = addr
	body := r.buffer[addr.Length:]
	r.buffer = nil

	logger.Infof("[tcp][connection: %s] connecting %s", r.id, addr)

	// hold reads until the target is connected
	r.client.Pause()
	r.stage = StageConnecting
	r.hold(body)
	r.dial(addr.String())
}

// hold keeps bytes bound for the remote until it connects. A local relay
// encrypts on arrival so the IV leads the first held chunk.
func (r *Relay) hold(data []byte) {
	if len(data) == 0 {
		return
	}

	if r.role == RoleLocal {
		data = r.encrypt(data)
		if data == nil {
			return
		}
	}

	r.pending = append(r.pending, data)
}

func (r *Relay) onConnected(remote Endpoint) {
	r.remote = remote
	r.up = NewFlow(r.client, remote)
	r.down = NewFlow(remote, r.client)

	logger.Debugf("[tcp][connection: %s] connected %s", r.id, r.target)

	for _, chunk := range r.pending {
		r.up.Send(chunk)
	}
	r.pending = nil
	r.stage = StageStreaming

	if r.role == RoleServer && r.up.State() == FlowOpen {
		r.client.Resume()
	}
}

func (r *Relay) onRemoteData(data []byte) {
	if r.down == nil {
		return
	}

	var err error
	if r.role == RoleLocal {
		data, err = r.encryptor.Decrypt(data)
		if err != nil {
			logger.Errorf("[tcp][connection: %s] failed to decrypt: %v", r.id, err)
			r.destroy()
			return
		}
	} else {
		data = r.encrypt(data)
		if data == nil {
			return
		}
	}

	r.down.Send(data)
}

func (r *Relay) onDrain(side Side) {
	// the drained side is the destination of the opposite flow
	if side == SideRemote && r.up != nil {
		r.up.Drain()
	}
	if side == SideClient && r.down != nil {
		r.down.Drain()
	}
}

func (r *Relay) onClose(side Side, err error) {
	if err != nil {
		logger.Debugf("[tcp][connection: %s] %s error: %v", r.id, side, err)
		r.destroy()
		return
	}

	logger.Debugf("[tcp][connection: %s] %s end", r.id, side)
	r.end()
}

func (r *Relay) encrypt(data []byte) []byte {
	out, err := r.encryptor.Encrypt(data)
	if err != nil {
		logger.Errorf("[tcp][connection: %s] failed to encrypt: %v", r.id, err)
		r.destroy()
		return nil
	}

	return out
}

// end closes both sides after their queued writes are flushed.
func (r *Relay) end() {
	r.client.End()
	if r.remote != nil {
		r.remote.End()
	}
	r.finish()
}

func (r *Relay) destroy() {
	r.client.Destroy()
	if r.remote != nil {
		r.remote.Destroy()
	}
	r.finish()
}

func (r *Relay) finish() {
	if r.done {
		return
	}

	r.done = true
	r.stage = StageClosed
	r.encryptor = nil
	r.buffer = nil
	r.pending = nil

	if r.onDone != nil {
		r.onDone()
	}
}

func addressOf(addr net.Addr) (*protocol.Address, error) {
	if addr == nil {
		return nil, errors.New("no local address")
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %s", addr)
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid port %s", port)
	}

	return protocol.NewAddress(host, uint16(p)), nil
}
