package tcp

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Connect dials the remote side of a relay. timeout bounds the connect
// phase only.
func Connect(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect %s", address)
	}

	return conn, nil
}
