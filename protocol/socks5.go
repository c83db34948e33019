package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrInvalidRequest = errors.New("invalid socks5 request")

// ConnectBindPort is the port reported in every CONNECT reply; clients do
// not use the bound address.
const ConnectBindPort = 2222

func GreetingReply() []byte {
	return []byte{SOCKS5_VERSION, METHOD_NO_AUTH}
}

func ConnectReply() []byte {
	reply := []byte{SOCKS5_VERSION, REPLY_SUCCEEDED, 0x00, AddressTypeIPv4, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(reply[8:], ConnectBindPort)
	return reply
}

func CommandNotSupportedReply() []byte {
	return []byte{SOCKS5_VERSION, REPLY_COMMAND_NOT_SUPPORTED, 0x00, AddressTypeIPv4}
}

// AssociateReply tells the client where to send its UDP requests.
func AssociateReply(bind *Address) ([]byte, error) {
	addr, err := bind.Encode()
	if err != nil {
		return nil, err
	}

	return append([]byte{SOCKS5_VERSION, REPLY_SUCCEEDED, 0x00}, addr...), nil
}

// Request is a SOCKS5 request: VER CMD RSV followed by the target address.
type Request struct {
	Command uint8
	Address *Address
	// Length covers the fixed prefix and the address header.
	Length int
}

// ParseRequest returns ErrTruncated while raw is too short to hold the
// whole request.
func ParseRequest(raw []byte) (*Request, error) {
	if len(raw) < 4 {
		return nil, ErrTruncated
	}
	if raw[0] != SOCKS5_VERSION {
		return nil, errors.Wrapf(ErrInvalidRequest, "version %d", raw[0])
	}

	request := &Request{Command: raw[1]}
	if request.Command != COMMAND_CONNECT && request.Command != COMMAND_UDP_ASSOCIATE {
		return request, nil
	}

	addr, err := ParseHeader(raw[3:])
	if err != nil {
		return nil, err
	}
	request.Address = addr
	request.Length = 3 + addr.Length

	return request, nil
}

// UDPHeader is the reserved and fragment prefix of a SOCKS5 UDP datagram.
func UDPHeader() []byte {
	return []byte{0x00, 0x00, 0x00}
}
