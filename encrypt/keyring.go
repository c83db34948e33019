package encrypt

import (
	"crypto/md5"
	"fmt"

	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/manager"
	"github.com/pkg/errors"
)

var ErrInvalidLength = errors.New("invalid key or iv length")

// Key is the key material derived from a password.
type Key struct {
	Key []byte
	IV  []byte
}

// Keyring derives key material and substitution tables from passwords and
// remembers them for the lifetime of the process. It is safe for
// concurrent use.
type Keyring struct {
	keys   *manager.Manager[*Key]
	tables *manager.Manager[*Table]
	digest func(data []byte) [md5.Size]byte
}

type KeyringOptions struct {
	// Digest replaces md5.Sum, for counting derivations in tests.
	Digest func(data []byte) [md5.Size]byte
}

func NewKeyring(opts ...*KeyringOptions) *Keyring {
	digest := md5.Sum
	if len(opts) == 1 && opts[0] != nil && opts[0].Digest != nil {
		digest = opts[0].Digest
	}

	return &Keyring{
		keys:   manager.New[*Key](),
		tables: manager.New[*Table](),
		digest: digest,
	}
}

// DeriveKey chains MD5 digests of the password, the same way OpenSSL's
// EVP_BytesToKey does with a single iteration and no salt:
// d0 = MD5(password), di = MD5(d(i-1) || password).
func (k *Keyring) DeriveKey(password string, keyLen, ivLen int) (*Key, error) {
	if keyLen < 0 || ivLen < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "key %d, iv %d", keyLen, ivLen)
	}

	id := fmt.Sprintf("%d:%d:%s", keyLen, ivLen, password)
	return k.keys.GetOrCreate(id, func() (*Key, error) {
		pw := []byte(password)
		material := make([]byte, 0, keyLen+ivLen+md5.Size)

		var prev []byte
		for len(material) < keyLen+ivLen {
			d := k.digest(append(prev, pw...))
			prev = d[:]
			material = append(material, prev...)
		}

		return &Key{
			Key: material[:keyLen:keyLen],
			IV:  material[keyLen : keyLen+ivLen : keyLen+ivLen],
		}, nil
	})
}

// Table returns the substitution table pair for password, building it on
// first use.
func (k *Keyring) Table(password string) *Table {
	table, _ := k.tables.GetOrCreate(password, func() (*Table, error) {
		logger.Debugf("[encrypt] calculating substitution table")
		return newTable(k.digest([]byte(password))), nil
	})

	return table
}
