package encrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// Encryptor ciphers both directions of one connection. The encrypting side
// sends its random IV ahead of the first chunk; the decrypting side takes
// the peer's IV from the head of the stream. An Encryptor must not be
// shared between connections.
type Encryptor struct {
	mode  Mode
	table *Table

	key    []byte
	iv     []byte
	ivSent bool
	enc    cipher.Stream

	peerIV []byte
	dec    cipher.Stream
}

func NewEncryptor(keyring *Keyring, password string, mode Mode) (*Encryptor, error) {
	if err := mode.validate(); err != nil {
		return nil, err
	}

	e := &Encryptor{mode: mode}
	if mode.Kind == ModeTable {
		e.table = keyring.Table(password)
		return e, nil
	}

	m := mode.Method
	key, err := keyring.DeriveKey(password, m.KeyLen, m.IVLen)
	if err != nil {
		return nil, err
	}
	e.key = key.Key

	e.iv = make([]byte, m.IVLen)
	if _, err := io.ReadFull(rand.Reader, e.iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate iv")
	}

	if e.enc, err = m.NewStream(e.key, e.iv, false); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Encryptor) Mode() Mode {
	return e.mode
}

// Encrypt returns the ciphertext of p; the first call prefixes the IV.
func (e *Encryptor) Encrypt(p []byte) ([]byte, error) {
	if e.mode.Kind == ModeTable {
		return substitute(&e.table.Encrypt, p), nil
	}

	offset := 0
	if !e.ivSent {
		offset = len(e.iv)
	}

	out := make([]byte, offset+len(p))
	copy(out, e.iv[:offset])
	e.enc.XORKeyStream(out[offset:], p)
	e.ivSent = true

	return out, nil
}

// Decrypt returns the plaintext of p. Bytes of the peer's IV are held back
// until the IV is complete, so the first calls may return nothing.
func (e *Encryptor) Decrypt(p []byte) ([]byte, error) {
	if e.mode.Kind == ModeTable {
		return substitute(&e.table.Decrypt, p), nil
	}

	if e.dec == nil {
		need := e.mode.Method.IVLen - len(e.peerIV)
		if len(p) < need {
			e.peerIV = append(e.peerIV, p...)
			return []byte{}, nil
		}

		e.peerIV = append(e.peerIV, p[:need]...)
		p = p[need:]

		dec, err := e.mode.Method.NewStream(e.key, e.peerIV, true)
		if err != nil {
			return nil, err
		}
		e.dec = dec
	}

	out := make([]byte, len(p))
	e.dec.XORKeyStream(out, p)
	return out, nil
}
