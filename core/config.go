package core

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/encrypt"
	"github.com/pkg/errors"
)

const (
	DefaultLocalAddress  = "127.0.0.1"
	DefaultLocalPort     = 1080
	DefaultServerPort    = 8388
	DefaultLocalTimeout  = 600 * time.Second
	DefaultServerTimeout = 300 * time.Second
	// ConnectTimeout bounds how long a server waits for a target to accept.
	ConnectTimeout = 15 * time.Second
)

var ErrNoPassword = errors.New("password or port_password not specified")

type Config struct {
	Servers      []string
	ServerPorts  []int
	PortPassword map[int]string
	LocalAddress string
	LocalPort    int
	Password     string
	Method       string
	Timeout      time.Duration
	Verbose      bool
}

// Mode resolves the configured method.
func (c *Config) Mode() (encrypt.Mode, error) {
	return encrypt.ParseMode(c.Method)
}

// ApplyDefaults fills what the config file and flags left unset.
func (c *Config) ApplyDefaults(role string) {
	if c.LocalAddress == "" {
		c.LocalAddress = DefaultLocalAddress
	}
	if c.LocalPort == 0 {
		c.LocalPort = DefaultLocalPort
	}
	if len(c.ServerPorts) == 0 && (role == RoleLocal || len(c.PortPassword) == 0) {
		c.ServerPorts = []int{DefaultServerPort}
	}
	if c.Method == "" {
		c.Method = encrypt.TableMethod
	}

	if len(c.Servers) == 0 {
		if role == RoleServer {
			c.Servers = []string{"0.0.0.0"}
		} else {
			c.Servers = []string{"127.0.0.1"}
		}
	}

	if c.Timeout <= 0 {
		if role == RoleServer {
			c.Timeout = DefaultServerTimeout
		} else {
			c.Timeout = DefaultLocalTimeout
		}
	}
}

// Check rejects configs that cannot run and warns about weak ones.
func (c *Config) Check(role string) error {
	if c.Password == "" && (role == RoleLocal || len(c.PortPassword) == 0) {
		return ErrNoPassword
	}

	if _, err := c.Mode(); err != nil {
		return err
	}

	if role == RoleLocal {
		for _, server := range c.Servers {
			host := strings.Split(server, ":")[0]
			if host == "127.0.0.1" || host == "localhost" {
				logger.Warnf("server set to listen on %s, are you sure?", server)
			}
		}
	}

	if strings.EqualFold(c.Method, "rc4") {
		logger.Warnf("rc4 is not safe; please use a safer cipher, like aes-256-cfb")
	}

	if role == RoleServer && len(c.PortPassword) > 0 && (c.Password != "" || len(c.ServerPorts) > 0) {
		logger.Warnf("port_password should not be used with server_port and password; server_port and password will be ignored")
	}

	return nil
}

// Tenant is one port of a server and the password its clients share.
type Tenant struct {
	Port     int
	Password string
}

// Tenants lists the server ports, from port_password when set.
func (c *Config) Tenants() []Tenant {
	var tenants []Tenant
	if len(c.PortPassword) > 0 {
		for port, password := range c.PortPassword {
			tenants = append(tenants, Tenant{Port: port, Password: password})
		}
	} else {
		for _, port := range c.ServerPorts {
			tenants = append(tenants, Tenant{Port: port, Password: c.Password})
		}
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].Port < tenants[j].Port
	})
	return tenants
}
