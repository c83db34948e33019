package core

import (
	"context"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/connection"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/go-zoox/shadowsocks/network"
	"golang.org/x/sync/errgroup"
)

const (
	RoleLocal  = network.RoleLocal
	RoleServer = network.RoleServer
)

type Local interface {
	Run(ctx context.Context) error
}

type local struct {
	cfg      *Config
	mode     encrypt.Mode
	keyring  *encrypt.Keyring
	upstream *Upstream
	counter  *connection.Counter
}

func NewLocal(cfg *Config) (Local, error) {
	cfg.ApplyDefaults(RoleLocal)
	if err := cfg.Check(RoleLocal); err != nil {
		return nil, err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	return &local{
		cfg:      cfg,
		mode:     mode,
		keyring:  encrypt.NewKeyring(),
		upstream: NewUpstream(cfg.Servers, cfg.ServerPorts),
		counter:  &connection.Counter{},
	}, nil
}

// Run serves SOCKS5 over TCP and UDP on the local address until ctx is
// done or either listener fails.
func (l *local) Run(ctx context.Context) error {
	logger.Infof("starting local at %s:%d, method: %s", l.cfg.LocalAddress, l.cfg.LocalPort, l.mode)

	g, ctx := errgroup.WithContext(ctx)
	for _, typ := range []string{"tcp", "udp"} {
		cfg := &network.ServeConfig{
			Type:           typ,
			Role:           RoleLocal,
			Host:           l.cfg.LocalAddress,
			Port:           l.cfg.LocalPort,
			Password:       l.cfg.Password,
			Mode:           l.mode,
			Keyring:        l.keyring,
			Timeout:        l.cfg.Timeout,
			ConnectTimeout: l.cfg.Timeout,
			Upstream:       l.upstream.Pick,
			Counter:        l.counter,
		}

		g.Go(func() error {
			return network.Serve(ctx, cfg)
		})
	}

	return g.Wait()
}
