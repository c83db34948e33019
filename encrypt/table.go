package encrypt

import "encoding/binary"

const tableRounds = 1024

// Table is the legacy byte substitution cipher: Decrypt[Encrypt[b]] == b.
type Table struct {
	Encrypt [256]byte
	Decrypt [256]byte
}

// newTable reorders the identity permutation 1023 times with a stable merge
// sort keyed on the low 64 bits of the password digest. The exact sequence
// of comparisons is part of the wire format.
func newTable(digest [16]byte) *Table {
	al := uint64(binary.LittleEndian.Uint32(digest[0:4]))
	ah := uint64(binary.LittleEndian.Uint32(digest[4:8]))

	perm := make([]int, 256)
	for i := range perm {
		perm[i] = i
	}

	for i := uint64(1); i < tableRounds; i++ {
		weight := func(x int) int64 {
			m := uint64(x) + i
			return int64(((ah%m)<<32 + al) % m)
		}

		perm = mergeSort(perm, func(x, y int) int64 {
			return weight(x) - weight(y)
		})
	}

	t := &Table{}
	for i, v := range perm {
		t.Encrypt[i] = byte(v)
		t.Decrypt[v] = byte(i)
	}

	return t
}

// mergeSort is top-down, puts the extra element of an odd split on the
// left, and takes from the left on ties.
func mergeSort(a []int, cmp func(x, y int) int64) []int {
	if len(a) < 2 {
		return a
	}

	middle := (len(a) + 1) / 2
	return merge(mergeSort(a[:middle], cmp), mergeSort(a[middle:], cmp), cmp)
}

func merge(left, right []int, cmp func(x, y int) int64) []int {
	result := make([]int, 0, len(left)+len(right))
	for len(left) > 0 && len(right) > 0 {
		if cmp(left[0], right[0]) <= 0 {
			result = append(result, left[0])
			left = left[1:]
		} else {
			result = append(result, right[0])
			right = right[1:]
		}
	}

	result = append(result, left...)
	return append(result, right...)
}

func substitute(table *[256]byte, data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = table[b]
	}

	return out
}
