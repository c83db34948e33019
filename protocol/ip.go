package protocol

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// FormatIPv6 renders 16 raw bytes as hex groups without leading zeros and
// collapses the first longest run of zero groups, even a single one, to "::".
// IPv4-mapped addresses stay in hex form.
func FormatIPv6(ip []byte) string {
	if len(ip) != 16 {
		return ""
	}

	groups := make([]string, 8)
	for i := range groups {
		groups[i] = strconv.FormatUint(uint64(binary.BigEndian.Uint16(ip[i*2:])), 16)
	}

	start, length := -1, 0
	for i := 0; i < len(groups); {
		if groups[i] != "0" {
			i++
			continue
		}

		j := i
		for j < len(groups) && groups[j] == "0" {
			j++
		}
		if j-i > length {
			start, length = i, j-i
		}
		i = j
	}

	if start == -1 {
		return strings.Join(groups, ":")
	}

	return strings.Join(groups[:start], ":") + "::" + strings.Join(groups[start+length:], ":")
}
