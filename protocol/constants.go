package protocol

// address types shared by SOCKS5 and the relay wire protocol
const (
	AddressTypeIPv4   = 0x01
	AddressTypeDomain = 0x03
	AddressTypeIPv6   = 0x04
)

const (
	SOCKS5_VERSION = 0x05
	METHOD_NO_AUTH = 0x00
)

const (
	COMMAND_CONNECT       = 0x01
	COMMAND_BIND          = 0x02
	COMMAND_UDP_ASSOCIATE = 0x03
)

const (
	REPLY_SUCCEEDED             = 0x00
	REPLY_COMMAND_NOT_SUPPORTED = 0x07
)

// MaxHeaderLength is the size of the largest address header:
// type, domain length, 255 domain bytes and port.
const MaxHeaderLength = 1 + 1 + 255 + 2
