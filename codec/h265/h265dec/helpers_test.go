/*
DESCRIPTION
  helpers_test.go provides helpers for writing test bitstreams.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265dec

import (
	"fmt"
	"strconv"
	"strings"
)

// bitString returns the bytes written as a string of binary digits, e.g.
// "0100 0001 1000 1100" is {0x41, 0x8c}. Spaces are ignored and a final
// partial byte is padded with zeros.
func bitString(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	if r := len(s) % 8; r != 0 {
		s += strings.Repeat("0", 8-r)
	}
	b := make([]byte, len(s)/8)
	for i := range b {
		v, err := strconv.ParseUint(s[8*i:8*i+8], 2, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid binary string: %w", err)
		}
		b[i] = byte(v)
	}
	return b, nil
}
