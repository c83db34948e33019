package encrypt

import (
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

type blockMode func(block cipher.Block, iv []byte, decrypt bool) cipher.Stream

func blockStream(newBlock func(key []byte) (cipher.Block, error), mode blockMode) func(key, iv []byte, decrypt bool) (cipher.Stream, error) {
	return func(key, iv []byte, decrypt bool) (cipher.Stream, error) {
		block, err := newBlock(key)
		if err != nil {
			return nil, err
		}

		return mode(block, iv, decrypt), nil
	}
}

func cfb(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	if decrypt {
		return cipher.NewCFBDecrypter(block, iv)
	}

	return cipher.NewCFBEncrypter(block, iv)
}

func ctr(block cipher.Block, iv []byte, _ bool) cipher.Stream {
	return cipher.NewCTR(block, iv)
}

func newRC4(key, _ []byte, _ bool) (cipher.Stream, error) {
	return rc4.NewCipher(key)
}

// rc4-md5 keys RC4 with MD5(key || iv) so every connection gets its own keystream.
func newRC4MD5(key, iv []byte, _ bool) (cipher.Stream, error) {
	h := md5.New()
	h.Write(key)
	h.Write(iv)

	return rc4.NewCipher(h.Sum(nil))
}

// The 8 byte chacha20 nonce is the IETF nonce with a zero high counter word.
func newChacha20(key, iv []byte, _ bool) (cipher.Stream, error) {
	nonce := iv
	if len(iv) == 8 {
		nonce = make([]byte, chacha20.NonceSize)
		copy(nonce[4:], iv)
	}

	return chacha20.NewUnauthenticatedCipher(key, nonce)
}

type salsaStream struct {
	key     [32]byte
	nonce   [8]byte
	counter uint64
}

func newSalsa20(key, iv []byte, _ bool) (cipher.Stream, error) {
	s := &salsaStream{}
	copy(s.key[:], key)
	copy(s.nonce[:], iv)
	return s, nil
}

// XORKeyStream continues from the byte offset reached by earlier calls by
// padding the input up to the current block position.
func (s *salsaStream) XORKeyStream(dst, src []byte) {
	if len(src) == 0 {
		return
	}

	pad := int(s.counter % 64)
	buf := make([]byte, pad+len(src))
	copy(buf[pad:], src)

	var counter [16]byte
	copy(counter[:8], s.nonce[:])
	binary.LittleEndian.PutUint64(counter[8:], s.counter/64)

	salsa.XORKeyStream(buf, buf, &counter, &s.key)
	copy(dst, buf[pad:])
	s.counter += uint64(len(src))
}
