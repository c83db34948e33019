package udp

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/go-zoox/shadowsocks/protocol"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 300 * time.Second
	maxPacketSize  = 64 * 1024
)

var ErrFragmented = errors.New("fragmented packets are not supported")

type Role int

const (
	RoleLocal Role = iota
	RoleServer
)

type ServeConfig struct {
	// Host may be empty to listen on both IPv4 and IPv6.
	Host string
	Port int
	Role Role

	Password string
	Mode     encrypt.Mode
	Keyring  *encrypt.Keyring

	// Timeout evicts sessions idle for longer.
	Timeout time.Duration
	// Upstream is the server address for a local relay.
	Upstream func() string
	// Now is the clock of the session table.
	Now func() time.Time
}

// session is one flow between a source and a destination, carried by its
// own outbound socket.
type session struct {
	conn   *net.UDPConn
	target *net.UDPAddr
}

func (s *session) Close() error {
	return s.conn.Close()
}

type Relay struct {
	cfg      *ServeConfig
	cipher   *encrypt.PacketCipher
	sessions *Table[*session]
}

func NewRelay(cfg *ServeConfig) (*Relay, error) {
	if cfg.Keyring == nil {
		cfg.Keyring = encrypt.NewKeyring()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Role == RoleLocal && cfg.Upstream == nil {
		return nil, errors.New("local udp relay needs an upstream")
	}

	cipher, err := encrypt.NewPacketCipher(cfg.Keyring, cfg.Password, cfg.Mode)
	if err != nil {
		return nil, err
	}

	return &Relay{
		cfg:      cfg,
		cipher:   cipher,
		sessions: NewTable[*session](cfg.Timeout, cfg.Now),
	}, nil
}

func (r *Relay) Sessions() *Table[*session] {
	return r.sessions
}

// Serve listens on the configured address, or on both address families
// when Host is empty, and relays until ctx is done.
func Serve(ctx context.Context, cfg *ServeConfig) error {
	relay, err := NewRelay(cfg)
	if err != nil {
		return err
	}

	var listeners []*net.UDPConn
	if cfg.Host == "" {
		for _, network := range []string{"udp4", "udp6"} {
			conn, err := net.ListenUDP(network, &net.UDPAddr{Port: cfg.Port})
			if err != nil {
				if network == "udp6" && len(listeners) > 0 {
					logger.Warnf("[udp] ipv6 unavailable: %v", err)
					continue
				}
				closeAll(listeners)
				return errors.Wrapf(err, "failed to listen %s at :%d", network, cfg.Port)
			}
			listeners = append(listeners, conn)
		}
	} else {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return errors.Wrapf(err, "invalid udp address %s", addr)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return errors.Wrapf(err, "failed to listen udp at %s", addr)
		}
		listeners = append(listeners, conn)
	}

	return relay.ServeConn(ctx, listeners...)
}

// ServeConn relays datagrams arriving on listeners and sweeps idle
// sessions until ctx is done.
func (r *Relay) ServeConn(ctx context.Context, listeners ...*net.UDPConn) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.sessions.Run(ctx, SweepInterval)
		return nil
	})

	for _, listener := range listeners {
		listener := listener
		logger.Info("listen udp server at: %s", listener.LocalAddr())

		g.Go(func() error {
			<-ctx.Done()
			listener.Close()
			return nil
		})

		g.Go(func() error {
			return r.read(ctx, listener)
		})
	}

	return g.Wait()
}

func (r *Relay) read(ctx context.Context, listener *net.UDPConn) error {
	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := listener.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to read udp")
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if err := r.handle(listener, src, data); err != nil {
			logger.Debugf("[udp] drop packet from %s: %v", src, err)
		}
	}
}

func (r *Relay) handle(listener *net.UDPConn, src *net.UDPAddr, data []byte) error {
	var (
		dst     *protocol.Address
		payload []byte
		target  string
		err     error
	)

	if r.cfg.Role == RoleLocal {
		if len(data) < 3 {
			return protocol.ErrTruncated
		}
		if data[2] != 0x00 {
			return ErrFragmented
		}

		if dst, err = protocol.ParseHeader(data[3:]); err != nil {
			return err
		}

		// the server needs the address header as well
		if payload, err = r.cipher.Encrypt(data[3:]); err != nil {
			return err
		}
	} else {
		plain, err := r.cipher.Decrypt(data)
		if err != nil {
			return err
		}

		if dst, err = protocol.ParseHeader(plain); err != nil {
			return err
		}

		payload = plain[dst.Length:]
		target = dst.String()
	}

	key := src.String() + "|" + dst.String()
	s, ok := r.sessions.Get(key)
	if !ok {
		if r.cfg.Role == RoleLocal {
			target = r.cfg.Upstream()
		}

		s, err = r.open(target)
		if err != nil {
			return err
		}

		logger.Debugf("[udp] new session %s via %s", key, target)
		r.sessions.Add(key, s)
		go r.respond(listener, src, key, s)
	}

	_, err = s.conn.WriteToUDP(payload, s.target)
	return err
}

func (r *Relay) open(target string) (*session, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", target)
	}

	network := "udp6"
	if addr.IP.To4() != nil {
		network = "udp4"
	}

	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open session socket")
	}

	return &session{
		conn:   conn,
		target: addr,
	}, nil
}

// respond relays datagrams coming back on a session socket to src until
// the socket is closed.
func (r *Relay) respond(listener *net.UDPConn, src *net.UDPAddr, key string, s *session) {
	defer r.sessions.Remove(key, s)

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		r.sessions.Get(key)

		data, err := r.reply(from, buf[:n])
		if err != nil {
			logger.Debugf("[udp] drop reply from %s: %v", from, err)
			continue
		}

		if _, err := listener.WriteToUDP(data, src); err != nil {
			logger.Debugf("[udp] failed to reply to %s: %v", src, err)
		}
	}
}

func (r *Relay) reply(from *net.UDPAddr, data []byte) ([]byte, error) {
	if r.cfg.Role == RoleServer {
		header, err := protocol.NewAddressFromUDP(from).Encode()
		if err != nil {
			return nil, err
		}

		return r.cipher.Encrypt(append(header, data...))
	}

	plain, err := r.cipher.Decrypt(data)
	if err != nil {
		return nil, err
	}
	if _, err := protocol.ParseHeader(plain); err != nil {
		return nil, err
	}

	return append(protocol.UDPHeader(), plain...), nil
}

func closeAll(conns []*net.UDPConn) {
	for _, conn := range conns {
		conn.Close()
	}
}
