// Package block holds the block ciphers that neither the standard library
// nor x/crypto ship. Each returns a cipher.Block for use with CFB.
package block

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrKeySize = errors.New("invalid key size")

const IDEABlockSize = 8

type ideaCipher struct {
	enc [52]uint16
	dec [52]uint16
}

// NewIDEA returns IDEA with a 128-bit key.
func NewIDEA(key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, errors.Wrapf(ErrKeySize, "idea: %d bytes", len(key))
	}

	c := &ideaCipher{}

	hi := binary.BigEndian.Uint64(key[0:])
	lo := binary.BigEndian.Uint64(key[8:])
	for i := 0; i < 52; {
		for j := 0; j < 8 && i < 52; j++ {
			if j < 4 {
				c.enc[i] = uint16(hi >> (48 - 16*j))
			} else {
				c.enc[i] = uint16(lo >> (48 - 16*(j-4)))
			}
			i++
		}

		// rotate the 128-bit key left by 25
		hi, lo = hi<<25|lo>>39, lo<<25|hi>>39
	}

	for r := 0; r < 9; r++ {
		e := c.enc[6*(8-r):]
		d := c.dec[6*r:]

		d[0] = ideaInv(e[0])
		if r == 0 || r == 8 {
			d[1], d[2] = -e[1], -e[2]
		} else {
			d[1], d[2] = -e[2], -e[1]
		}
		d[3] = ideaInv(e[3])

		if r < 8 {
			prev := c.enc[6*(8-r)-2:]
			d[4], d[5] = prev[0], prev[1]
		}
	}

	return c, nil
}

func (c *ideaCipher) BlockSize() int { return IDEABlockSize }

func (c *ideaCipher) Encrypt(dst, src []byte) { ideaCrypt(&c.enc, dst, src) }

func (c *ideaCipher) Decrypt(dst, src []byte) { ideaCrypt(&c.dec, dst, src) }

func ideaCrypt(k *[52]uint16, dst, src []byte) {
	x1 := binary.BigEndian.Uint16(src[0:])
	x2 := binary.BigEndian.Uint16(src[2:])
	x3 := binary.BigEndian.Uint16(src[4:])
	x4 := binary.BigEndian.Uint16(src[6:])

	for r := 0; r < 8; r++ {
		sk := k[6*r : 6*r+6]

		x1 = ideaMul(x1, sk[0])
		x2 += sk[1]
		x3 += sk[2]
		x4 = ideaMul(x4, sk[3])

		t0 := ideaMul(x1^x3, sk[4])
		t1 := ideaMul((x2^x4)+t0, sk[5])
		t0 += t1

		x1 ^= t1
		x4 ^= t0
		x2, x3 = x3^t1, x2^t0
	}

	binary.BigEndian.PutUint16(dst[0:], ideaMul(x1, k[48]))
	binary.BigEndian.PutUint16(dst[2:], x3+k[49])
	binary.BigEndian.PutUint16(dst[4:], x2+k[50])
	binary.BigEndian.PutUint16(dst[6:], ideaMul(x4, k[51]))
}

// ideaMul multiplies modulo 2^16+1, with 0 standing for 2^16.
func ideaMul(a, b uint16) uint16 {
	x, y := uint64(a), uint64(b)
	if x == 0 {
		x = 0x10000
	}
	if y == 0 {
		y = 0x10000
	}

	return uint16(x * y % 0x10001)
}

func ideaInv(x uint16) uint16 {
	if x <= 1 {
		return x
	}

	// x^(p-2) mod p
	r, b := uint64(1), uint64(x)
	for e := 0x10001 - 2; e > 0; e >>= 1 {
		if e&1 == 1 {
			r = r * b % 0x10001
		}
		b = b * b % 0x10001
	}

	return uint16(r)
}
