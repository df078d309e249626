/*
NAME
  scanner_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package codecutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScanner(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want [][]byte
	}{
		{
			name: "three and four byte start codes",
			in:   []byte{0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c, 0x00, 0x00, 0x01, 0x42, 0x01, 0x01},
			want: [][]byte{
				{0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c},
				{0x00, 0x00, 0x01, 0x42, 0x01, 0x01},
			},
		},
		{
			name: "leading garbage",
			in:   []byte{0xff, 0xfe, 0x00, 0x00, 0x01, 0x26, 0x01},
			want: [][]byte{
				{0xff, 0xfe},
				{0x00, 0x00, 0x01, 0x26, 0x01},
			},
		},
		{
			name: "emulation prevention is not a start code",
			in:   []byte{0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0x00, 0x03, 0x01, 0x80},
			want: [][]byte{
				{0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0x00, 0x03, 0x01, 0x80},
			},
		},
		{
			name: "long zero run",
			in:   []byte{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0xe0},
			want: [][]byte{
				{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0},
				{0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0xe0},
			},
		},
		{
			name: "trailing zeros",
			in:   []byte{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0, 0x00, 0x00},
			want: [][]byte{
				{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0},
			},
		},
		{
			name: "empty",
		},
	}

	for _, test := range tests {
		for _, size := range []int{1, 2, 8, 1 << 10} {
			t.Run(fmt.Sprintf("%s/%d", test.name, size), func(t *testing.T) {
				s := NewScanner(bytes.NewReader(test.in), size)
				var got [][]byte
				for {
					nal, err := s.Next()
					if err == io.EOF {
						break
					}
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					got = append(got, nal)
				}
				if !cmp.Equal(got, test.want) {
					t.Errorf("did not get expected NAL units\n%s", cmp.Diff(test.want, got))
				}

				// The end of the stream is sticky.
				_, err := s.Next()
				if err != io.EOF {
					t.Errorf("expected io.EOF after end of stream, got: %v", err)
				}
			})
		}
	}
}

// dataErrReader returns all its data along with err in a single read.
type dataErrReader struct {
	data []byte
	err  error
}

func (r *dataErrReader) Read(p []byte) (int, error) {
	if r.data == nil {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = nil
	return n, r.err
}

func TestScannerReadError(t *testing.T) {
	errBroken := errors.New("broken")
	s := NewScanner(&dataErrReader{data: []byte{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0}, err: errBroken}, 0)
	_, err := s.Next()
	if !errors.Is(err, errBroken) {
		t.Errorf("expected read error, got: %v", err)
	}
	_, err = s.Next()
	if !errors.Is(err, errBroken) {
		t.Errorf("expected read error to be sticky, got: %v", err)
	}
}

func TestScanNALUsCallbackError(t *testing.T) {
	errStop := errors.New("stop")
	var calls int
	in := []byte{0x00, 0x00, 0x01, 0x02, 0x01, 0xd0, 0x00, 0x00, 0x01, 0x02, 0x01, 0xe0}
	err := ScanNALUs(bytes.NewReader(in), func([]byte) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) || calls != 1 {
		t.Errorf("unexpected result: err=%v calls=%d", err, calls)
	}
}
