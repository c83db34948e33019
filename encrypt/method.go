package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"sort"
	"strings"

	"github.com/aead/camellia"
	"github.com/go-zoox/shadowsocks/encrypt/block"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
)

var ErrUnsupportedMethod = errors.New("unsupported cipher method")

// Method describes a stream cipher by its derived key and IV sizes.
type Method struct {
	Name   string
	KeyLen int
	IVLen  int

	newStream func(key, iv []byte, decrypt bool) (cipher.Stream, error)
}

// NewStream builds one direction of the cipher.
func (m *Method) NewStream(key, iv []byte, decrypt bool) (cipher.Stream, error) {
	stream, err := m.newStream(key, iv, decrypt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s cipher", m.Name)
	}

	return stream, nil
}

var methods = map[string]*Method{
	"aes-128-cfb":      {"aes-128-cfb", 16, 16, blockStream(aes.NewCipher, cfb)},
	"aes-192-cfb":      {"aes-192-cfb", 24, 16, blockStream(aes.NewCipher, cfb)},
	"aes-256-cfb":      {"aes-256-cfb", 32, 16, blockStream(aes.NewCipher, cfb)},
	"aes-128-ctr":      {"aes-128-ctr", 16, 16, blockStream(aes.NewCipher, ctr)},
	"aes-192-ctr":      {"aes-192-ctr", 24, 16, blockStream(aes.NewCipher, ctr)},
	"aes-256-ctr":      {"aes-256-ctr", 32, 16, blockStream(aes.NewCipher, ctr)},
	"bf-cfb":           {"bf-cfb", 16, 8, blockStream(newBlowfish, cfb)},
	"camellia-128-cfb": {"camellia-128-cfb", 16, 16, blockStream(camellia.NewCipher, cfb)},
	"camellia-192-cfb": {"camellia-192-cfb", 24, 16, blockStream(camellia.NewCipher, cfb)},
	"camellia-256-cfb": {"camellia-256-cfb", 32, 16, blockStream(camellia.NewCipher, cfb)},
	"cast5-cfb":        {"cast5-cfb", 16, 8, blockStream(newCast5, cfb)},
	"des-cfb":          {"des-cfb", 8, 8, blockStream(des.NewCipher, cfb)},
	"idea-cfb":         {"idea-cfb", 16, 8, blockStream(block.NewIDEA, cfb)},
	"rc2-cfb":          {"rc2-cfb", 16, 8, blockStream(newRC2, cfb)},
	"seed-cfb":         {"seed-cfb", 16, 16, blockStream(block.NewSEED, cfb)},
	"salsa20":          {"salsa20", 32, 8, newSalsa20},
	"chacha20":         {"chacha20", 32, 8, newChacha20},
	"chacha20-ietf":    {"chacha20-ietf", 32, 12, newChacha20},
	"rc4":              {"rc4", 16, 0, newRC4},
	"rc4-md5":          {"rc4-md5", 16, 16, newRC4MD5},
	"rc4-md5-6":        {"rc4-md5-6", 16, 6, newRC4MD5},
}

// Methods lists the supported stream methods by name.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupMethod(name string) (*Method, error) {
	m, ok := methods[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "method %s", name)
	}

	return m, nil
}

type ModeKind int

const (
	ModeTable ModeKind = iota
	ModeStream
)

// Mode selects between the legacy substitution table and a stream method.
type Mode struct {
	Kind   ModeKind
	Method *Method
}

const TableMethod = "table"

// ParseMode maps a configured method name to a Mode; "" and "table" pick
// the substitution table.
func ParseMode(name string) (Mode, error) {
	if name == "" || strings.EqualFold(name, TableMethod) {
		return Mode{Kind: ModeTable}, nil
	}

	m, err := LookupMethod(name)
	if err != nil {
		return Mode{}, err
	}

	return Mode{Kind: ModeStream, Method: m}, nil
}

func (m Mode) String() string {
	if m.Kind == ModeStream && m.Method != nil {
		return m.Method.Name
	}

	return TableMethod
}

func (m Mode) validate() error {
	switch m.Kind {
	case ModeTable:
		return nil
	case ModeStream:
		if m.Method == nil {
			return errors.Wrap(ErrUnsupportedMethod, "stream mode without method")
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedMethod, "mode %d", m.Kind)
	}
}

func newBlowfish(key []byte) (cipher.Block, error) {
	return blowfish.NewCipher(key)
}

func newCast5(key []byte) (cipher.Block, error) {
	return cast5.NewCipher(key)
}

// newRC2 uses the whole key as effective key length.
func newRC2(key []byte) (cipher.Block, error) {
	return block.NewRC2(key, len(key)*8)
}
