package network

import (
	"context"
	"time"

	"github.com/go-zoox/shadowsocks/connection"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/go-zoox/shadowsocks/network/tcp"
	"github.com/go-zoox/shadowsocks/network/udp"
	"github.com/pkg/errors"
)

const (
	RoleLocal  = "local"
	RoleServer = "server"
)

type ServeConfig struct {
	Type string
	Role string
	Host string
	Port int

	Password string
	Mode     encrypt.Mode
	Keyring  *encrypt.Keyring

	Timeout        time.Duration
	ConnectTimeout time.Duration
	Upstream       func() string
	Counter        *connection.Counter
}

func Serve(ctx context.Context, cfg *ServeConfig) error {
	if cfg.Role != RoleLocal && cfg.Role != RoleServer {
		return errors.Errorf("role(%s) not supported", cfg.Role)
	}

	switch cfg.Type {
	case "tcp":
		role := tcp.RoleLocal
		if cfg.Role == RoleServer {
			role = tcp.RoleServer
		}

		return tcp.Serve(ctx, &tcp.ServeConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Role:           role,
			Password:       cfg.Password,
			Mode:           cfg.Mode,
			Keyring:        cfg.Keyring,
			Timeout:        cfg.Timeout,
			ConnectTimeout: cfg.ConnectTimeout,
			Upstream:       cfg.Upstream,
			Counter:        cfg.Counter,
		})
	case "udp":
		role := udp.RoleLocal
		if cfg.Role == RoleServer {
			role = udp.RoleServer
		}

		return udp.Serve(ctx, &udp.ServeConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Role:     role,
			Password: cfg.Password,
			Mode:     cfg.Mode,
			Keyring:  cfg.Keyring,
			Timeout:  cfg.Timeout,
			Upstream: cfg.Upstream,
		})
	default:
		return errors.Errorf("network type(%s) not supported", cfg.Type)
	}
}
