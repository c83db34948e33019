package encrypt

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	calls := 0
	keyring := NewKeyring(&KeyringOptions{
		Digest: func(data []byte) [md5.Size]byte {
			calls++
			return md5.Sum(data)
		},
	})

	key, err := keyring.DeriveKey("foobar", 32, 16)
	if err != nil {
		t.Fatalf("failed to derive: %s", err)
	}
	if len(key.Key) != 32 || len(key.IV) != 16 {
		t.Fatalf("length not match, expect 32/16, but got %d/%d", len(key.Key), len(key.IV))
	}

	expectKey, _ := hex.DecodeString("3858f62230ac3c915f300c664312c63f568378529614d22ddb49237d2f60bfdf")
	expectIV, _ := hex.DecodeString("0ebf5878e82af7da618ed56fc67d4ab7")
	if !bytes.Equal(key.Key, expectKey) || !bytes.Equal(key.IV, expectIV) {
		t.Fatalf("key material not match, got %x %x", key.Key, key.IV)
	}
	if calls != 3 {
		t.Fatalf("digest calls not match, expect 3, but got %d", calls)
	}

	again, _ := keyring.DeriveKey("foobar", 32, 16)
	if !bytes.Equal(again.Key, key.Key) || !bytes.Equal(again.IV, key.IV) {
		t.Fatalf("cached key material not match")
	}
	if calls != 3 {
		t.Fatalf("expect no recomputation, but digest was called %d times", calls)
	}

	short, _ := keyring.DeriveKey("foobar", 8, 8)
	if len(short.Key) != 8 || len(short.IV) != 8 || !bytes.Equal(short.Key, expectKey[:8]) {
		t.Fatalf("unexpected short key material %x %x", short.Key, short.IV)
	}

	empty, err := keyring.DeriveKey("", 16, 0)
	if err != nil || len(empty.Key) != 16 || len(empty.IV) != 0 {
		t.Fatalf("unexpected key material for empty password: %v %v", empty, err)
	}

	if _, err := keyring.DeriveKey("foobar", -1, 0); err == nil {
		t.Fatalf("expect negative length to fail")
	}
}

func TestTable(t *testing.T) {
	keyring := NewKeyring()
	table := keyring.Table("foobar!")

	expected := []byte{60, 53, 84, 138, 217, 94, 88, 23, 39, 242, 219, 35, 12, 157, 165, 181}
	if !bytes.Equal(table.Encrypt[:16], expected) {
		t.Fatalf("table not match, expect %v, but got %v", expected, table.Encrypt[:16])
	}

	for i := 0; i < 256; i++ {
		if int(table.Decrypt[table.Encrypt[i]]) != i {
			t.Fatalf("decrypt table is not the inverse at %d", i)
		}
	}

	if keyring.Table("foobar!") != table {
		t.Fatalf("expect the cached table to be returned")
	}

	if keyring.Table("another password").Encrypt == table.Encrypt {
		t.Fatalf("expect different passwords to produce different tables")
	}
}

func TestEmptyPasswordTable(t *testing.T) {
	table := NewKeyring().Table("")

	expected := []byte{140, 85, 229, 88, 210, 9, 245, 249, 166, 24, 10, 182, 101, 4, 238, 30}
	if !bytes.Equal(table.Encrypt[:16], expected) {
		t.Fatalf("table not match, expect %v, but got %v", expected, table.Encrypt[:16])
	}
}

func TestMergeSortStable(t *testing.T) {
	in := []int{5, 1, 4, 2, 3, 0, 6}
	// order by parity only; ties keep input order
	got := mergeSort(in, func(x, y int) int64 { return int64(x%2) - int64(y%2) })

	expected := []int{4, 2, 0, 6, 5, 1, 3}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expect %v, but got %v", expected, got)
		}
	}
}
