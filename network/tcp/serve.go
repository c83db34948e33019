package tcp

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/connection"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/pkg/errors"
)

const (
	DefaultTimeout        = 300 * time.Second
	DefaultConnectTimeout = 15 * time.Second
)

type ServeConfig struct {
	Host string
	Port int
	Role Role

	Password string
	Mode     encrypt.Mode
	Keyring  *encrypt.Keyring

	// Timeout closes a connection idle in both directions.
	Timeout time.Duration
	// ConnectTimeout bounds connecting the remote side.
	ConnectTimeout time.Duration
	HighWaterMark  int

	// Upstream picks the server address for each local connection.
	Upstream func() string
	Counter  *connection.Counter
}

func (cfg *ServeConfig) Address() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func Serve(ctx context.Context, cfg *ServeConfig) error {
	addr := cfg.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen tcp at %s", addr)
	}

	logger.Info("listen tcp server at: %s", listener.Addr())
	return ServeListener(ctx, listener, cfg)
}

// ServeListener relays every connection accepted from listener until ctx
// is done.
func ServeListener(ctx context.Context, listener net.Listener, cfg *ServeConfig) error {
	if cfg.Counter == nil {
		cfg.Counter = &connection.Counter{}
	}
	if cfg.Keyring == nil {
		cfg.Keyring = encrypt.NewKeyring()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stop:
		}
	}()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			logger.Errorf("[tcp] failed to accept: %v", err)
			continue
		}

		go handle(ctx, conn, cfg)
	}
}

func handle(ctx context.Context, conn net.Conn, cfg *ServeConfig) {
	id := connection.GenerateID()

	encryptor, err := encrypt.NewEncryptor(cfg.Keyring, cfg.Password, cfg.Mode)
	if err != nil {
		logger.Errorf("[tcp][connection: %s] %v", id, err)
		conn.Close()
		return
	}

	l := newLoop(ctx, id, cfg)
	client := l.endpoint(SideClient, conn)
	l.relay = NewRelay(&RelayConfig{
		ID:        id,
		Role:      cfg.Role,
		Encryptor: encryptor,
		Client:    client,
		Dial:      l.dial,
		Upstream:  cfg.Upstream,
	})

	logger.Debugf("[tcp][connection: %s] accepted %s, connections: %d", id, conn.RemoteAddr(), cfg.Counter.Inc())
	client.Start()

	l.run()

	logger.Debugf("[tcp][connection: %s] closed, connections: %d", id, cfg.Counter.Dec())
}
