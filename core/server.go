package core

import (
	"context"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/connection"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/go-zoox/shadowsocks/network"
	"golang.org/x/sync/errgroup"
)

type Server interface {
	Run(ctx context.Context) error
}

type server struct {
	cfg     *Config
	mode    encrypt.Mode
	keyring *encrypt.Keyring
	counter *connection.Counter
}

func NewServer(cfg *Config) (Server, error) {
	cfg.ApplyDefaults(RoleServer)
	if err := cfg.Check(RoleServer); err != nil {
		return nil, err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	return &server{
		cfg:     cfg,
		mode:    mode,
		keyring: encrypt.NewKeyring(),
		counter: &connection.Counter{},
	}, nil
}

// Run starts a TCP and a UDP listener for every server address and
// tenant. The first listener to fail stops all of them.
func (s *server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, host := range s.cfg.Servers {
		for _, tenant := range s.cfg.Tenants() {
			logger.Infof("starting server at %s:%d, method: %s", host, tenant.Port, s.mode)

			for _, typ := range []string{"tcp", "udp"} {
				cfg := &network.ServeConfig{
					Type:           typ,
					Role:           RoleServer,
					Host:           host,
					Port:           tenant.Port,
					Password:       tenant.Password,
					Mode:           s.mode,
					Keyring:        s.keyring,
					Timeout:        s.cfg.Timeout,
					ConnectTimeout: ConnectTimeout,
					Counter:        s.counter,
				}

				g.Go(func() error {
					return network.Serve(ctx, cfg)
				})
			}
		}
	}

	return g.Wait()
}
