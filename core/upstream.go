package core

import (
	"net"
	"regexp"
	"strconv"

	"github.com/go-zoox/random"
)

var serverWithPort = regexp.MustCompile(`^([^:]*):(\d+)$`)

// Upstream picks the server a new local connection is relayed through.
type Upstream struct {
	servers []string
	ports   []int
	intn    func(n int) int
}

func NewUpstream(servers []string, ports []int) *Upstream {
	return &Upstream{
		servers: servers,
		ports:   ports,
		intn:    intn,
	}
}

// intn draws from [0, n).
func intn(n int) int {
	return random.Int(n, 0)
}

// Pick chooses a server and a port uniformly at random. A server written
// as host:port keeps its own port.
func (u *Upstream) Pick() string {
	server := u.servers[u.intn(len(u.servers))]
	port := u.ports[u.intn(len(u.ports))]

	if m := serverWithPort.FindStringSubmatch(server); m != nil {
		server = m[1]
		port, _ = strconv.Atoi(m[2])
	}

	return net.JoinHostPort(server, strconv.Itoa(port))
}
