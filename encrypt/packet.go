package encrypt

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

var ErrShortPacket = errors.New("packet shorter than iv")

// PacketCipher ciphers self-contained datagrams; every packet carries its
// own fresh IV.
type PacketCipher struct {
	mode  Mode
	key   []byte
	table *Table
}

func NewPacketCipher(keyring *Keyring, password string, mode Mode) (*PacketCipher, error) {
	if err := mode.validate(); err != nil {
		return nil, err
	}

	c := &PacketCipher{mode: mode}
	if mode.Kind == ModeTable {
		c.table = keyring.Table(password)
		return c, nil
	}

	key, err := keyring.DeriveKey(password, mode.Method.KeyLen, mode.Method.IVLen)
	if err != nil {
		return nil, err
	}
	c.key = key.Key

	return c, nil
}

func (c *PacketCipher) Encrypt(data []byte) ([]byte, error) {
	if c.mode.Kind == ModeTable {
		return substitute(&c.table.Encrypt, data), nil
	}

	m := c.mode.Method
	out := make([]byte, m.IVLen+len(data))
	iv := out[:m.IVLen]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate iv")
	}

	stream, err := m.NewStream(c.key, iv, false)
	if err != nil {
		return nil, err
	}
	stream.XORKeyStream(out[m.IVLen:], data)

	return out, nil
}

func (c *PacketCipher) Decrypt(data []byte) ([]byte, error) {
	if c.mode.Kind == ModeTable {
		return substitute(&c.table.Decrypt, data), nil
	}

	m := c.mode.Method
	if len(data) < m.IVLen {
		return nil, errors.Wrapf(ErrShortPacket, "%d bytes", len(data))
	}

	stream, err := m.NewStream(c.key, data[:m.IVLen], true)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data)-m.IVLen)
	stream.XORKeyStream(out, data[m.IVLen:])
	return out, nil
}
