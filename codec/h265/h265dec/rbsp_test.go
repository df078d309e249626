/*
DESCRIPTION
  rbsp_test.go provides testing for functionality in rbsp.go.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265dec

import (
	"bytes"
	"testing"
)

func TestUnescapeRBSP(t *testing.T) {
	tests := []struct {
		in   []byte
		max  int
		want []byte
	}{
		{
			in:   []byte{0x26, 0x01, 0xaf},
			want: []byte{0x26, 0x01, 0xaf},
		},
		{
			in:   []byte{0x00, 0x00, 0x03, 0x01},
			want: []byte{0x00, 0x00, 0x01},
		},
		{
			in:   []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03},
			want: []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			in:   []byte{0x00, 0x03, 0x00, 0x03},
			want: []byte{0x00, 0x03, 0x00, 0x03},
		},
		{
			in:   []byte{0x00, 0x00, 0x00, 0x03, 0x03},
			want: []byte{0x00, 0x00, 0x00, 0x03},
		},
		{
			in:   []byte{0x01, 0x02, 0x00, 0x00, 0x03, 0x04},
			max:  4,
			want: []byte{0x01, 0x02, 0x00, 0x00},
		},
	}

	for i, test := range tests {
		orig := append([]byte(nil), test.in...)
		got := UnescapeRBSP(test.in, test.max)
		if !bytes.Equal(got, test.want) {
			t.Errorf("did not get expected result for test %d\nGot: %v\nWant: %v\n", i, got, test.want)
		}
		if !bytes.Equal(test.in, orig) {
			t.Errorf("input modified for test %d", i)
		}
	}
}
