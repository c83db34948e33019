package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

var (
	ErrTruncated          = errors.New("address header truncated")
	ErrUnknownAddressType = errors.New("unknown address type")
	ErrDomainTooLong      = errors.New("domain longer than 255 bytes")
	ErrInvalidIP          = errors.New("invalid ip address")
)

// Address is a target endpoint as carried in an address header.
//
// Length is the number of header bytes it was decoded from; it is zero for
// addresses built with NewAddress.
type Address struct {
	Type   uint8
	Host   string
	Port   uint16
	Length int
}

// NewAddress picks the address type from the host form.
func NewAddress(host string, port uint16) *Address {
	addr := &Address{
		Type: AddressTypeDomain,
		Host: host,
		Port: port,
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			addr.Type = AddressTypeIPv4
			addr.Host = ip.To4().String()
		} else {
			addr.Type = AddressTypeIPv6
			addr.Host = FormatIPv6(ip.To16())
		}
	}

	return addr
}

// NewAddressFromUDP builds the header address of a datagram responder.
func NewAddressFromUDP(addr *net.UDPAddr) *Address {
	return NewAddress(addr.IP.String(), uint16(addr.Port))
}

func (a *Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// ParseHeader decodes the address header at the start of raw. It never
// reads past raw; a short buffer yields ErrTruncated so callers can wait
// for more bytes.
func ParseHeader(raw []byte) (*Address, error) {
	reader := bytes.NewReader(raw)

	typ, err := reader.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}

	addr := &Address{Type: typ}
	switch typ {
	case AddressTypeIPv4:
		buf := make([]byte, net.IPv4len)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, ErrTruncated
		}
		addr.Host = net.IP(buf).String()
	case AddressTypeIPv6:
		buf := make([]byte, net.IPv6len)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, ErrTruncated
		}
		addr.Host = FormatIPv6(buf)
	case AddressTypeDomain:
		n, err := reader.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, ErrTruncated
		}
		addr.Host = string(buf)
	default:
		return nil, errors.Wrapf(ErrUnknownAddressType, "type %d", typ)
	}

	port := make([]byte, 2)
	if _, err := io.ReadFull(reader, port); err != nil {
		return nil, ErrTruncated
	}
	addr.Port = binary.BigEndian.Uint16(port)
	addr.Length = len(raw) - reader.Len()

	return addr, nil
}

// Encode serializes the address in the exact form ParseHeader reads.
func (a *Address) Encode() ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	buf.WriteByte(a.Type)

	switch a.Type {
	case AddressTypeIPv4:
		ip := net.ParseIP(a.Host).To4()
		if ip == nil {
			return nil, errors.Wrapf(ErrInvalidIP, "ipv4 %s", a.Host)
		}
		buf.Write(ip)
	case AddressTypeIPv6:
		ip := net.ParseIP(a.Host)
		if ip == nil {
			return nil, errors.Wrapf(ErrInvalidIP, "ipv6 %s", a.Host)
		}
		buf.Write(ip.To16())
	case AddressTypeDomain:
		if len(a.Host) > 255 {
			return nil, ErrDomainTooLong
		}
		buf.WriteByte(byte(len(a.Host)))
		buf.WriteString(a.Host)
	default:
		return nil, errors.Wrapf(ErrUnknownAddressType, "type %d", a.Type)
	}

	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, a.Port)
	buf.Write(port)

	return buf.Bytes(), nil
}
