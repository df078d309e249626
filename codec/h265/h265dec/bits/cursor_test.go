/*
DESCRIPTION
  cursor_test.go provides testing for functionality in cursor.go.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package bits

import (
	"errors"
	"testing"
)

func TestReadBits(t *testing.T) {
	tests := []struct {
		in   []byte
		off  int
		n    []int
		want []uint64
		err  error
	}{
		{
			in:   []byte{0x8f, 0xe3},
			n:    []int{4, 2, 4, 6},
			want: []uint64{0x8, 0x3, 0xf, 0x23},
		},
		{
			in:   []byte{0x8f, 0xe3},
			off:  3,
			n:    []int{13},
			want: []uint64{0x0fe3},
		},
		{
			in:   []byte{0xff, 0x00, 0xaa, 0x55, 0x01, 0x02, 0x03, 0x04, 0x05},
			off:  4,
			n:    []int{64},
			want: []uint64{0xf00aa55010203040},
		},
		{
			in:   []byte{0x8f},
			n:    []int{0, 8},
			want: []uint64{0, 0x8f},
		},
		{
			in:   []byte{0x8f},
			n:    []int{4, 5},
			want: []uint64{0x8, 0},
			err:  ErrOutOfRange,
		},
	}

	for i, test := range tests {
		c, err := NewCursor(test.in, test.off)
		if err != nil {
			t.Fatalf("did not expect error %v from NewCursor for test %d", err, i)
		}

		for j, n := range test.n {
			got, err := c.ReadBits(n)
			if err != nil {
				if !errors.Is(err, test.err) || j != len(test.n)-1 {
					t.Errorf("did not get expected error for test %d, read %d\nGot: %v\nWant: %v\n", i, j, err, test.err)
				}
				break
			}
			if got != test.want[j] {
				t.Errorf("did not get expected result for test %d, read %d\nGot: %#x\nWant: %#x\n", i, j, got, test.want[j])
			}
		}
	}
}

func TestFailedReadDoesNotAdvance(t *testing.T) {
	c, err := NewCursor([]byte{0xf0}, 6)
	if err != nil {
		t.Fatalf("did not expect error from NewCursor: %v", err)
	}
	if _, err := c.ReadBits(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got: %v", err)
	}
	if c.Pos() != 6 {
		t.Errorf("cursor moved after failed read, pos: %d", c.Pos())
	}
	if c.Remaining() != 2 {
		t.Errorf("unexpected remaining bits: %d", c.Remaining())
	}
}

func TestReadBit(t *testing.T) {
	c, err := NewCursor([]byte{0xa0}, 0)
	if err != nil {
		t.Fatalf("did not expect error from NewCursor: %v", err)
	}

	want := []uint8{1, 0, 1, 0, 0, 0, 0, 0}
	for i, w := range want {
		p, err := c.PeekBit()
		if err != nil {
			t.Fatalf("did not expect error from PeekBit at bit %d: %v", i, err)
		}
		b, err := c.ReadBit()
		if err != nil {
			t.Fatalf("did not expect error from ReadBit at bit %d: %v", i, err)
		}
		if p != b || b != w {
			t.Errorf("unexpected bit %d, peeked: %d, read: %d, want: %d", i, p, b, w)
		}
	}

	if !c.ByteAligned() {
		t.Error("expected cursor to be byte aligned")
	}
	if _, err := c.ReadBit(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange at end of buffer, got: %v", err)
	}
	if c.Pos() != 8 {
		t.Errorf("cursor moved past end of buffer, pos: %d", c.Pos())
	}
}

func TestNewCursor(t *testing.T) {
	tests := []struct {
		len int
		off int
		err error
	}{
		{len: 2, off: 0},
		{len: 2, off: 16},
		{len: 2, off: 17, err: ErrOutOfRange},
		{len: 2, off: -1, err: ErrOutOfRange},
		{len: 0, off: 0},
	}

	for i, test := range tests {
		_, err := NewCursor(make([]byte, test.len), test.off)
		if !errors.Is(err, test.err) {
			t.Errorf("did not get expected error for test %d\nGot: %v\nWant: %v\n", i, err, test.err)
		}
	}
}

func TestSkip(t *testing.T) {
	c, _ := NewCursor([]byte{0x01}, 0)
	if err := c.Skip(7); err != nil {
		t.Fatalf("did not expect error from Skip: %v", err)
	}
	b, err := c.ReadBit()
	if err != nil || b != 1 {
		t.Errorf("unexpected bit after skip: %d, err: %v", b, err)
	}
	if err := c.Skip(1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got: %v", err)
	}
}
