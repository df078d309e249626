/*
NAME
  scanner.go

DESCRIPTION
  scanner.go provides a scanner splitting an Annex B byte stream into NAL
  units.

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
	"io"
)

// Buffer sizes.
const (
	readBufSize = 4 << 10 // Standard file buffer size.
	nalBufSize  = 8 << 10
)

// Scanner splits an Annex B byte stream into NAL units, start codes
// included. Bytes preceding the first start code are returned as is. Runs of
// more than three zeros before a start code are reduced to a four byte start
// code, and trailing zeros at the end of the stream are dropped.
type Scanner struct {
	r   io.Reader
	buf []byte
	off int

	cur  []byte // NAL unit being scanned.
	rerr error  // Deferred read error.
	err  error  // Sticky error returned by Next.
}

// NewScanner returns a Scanner reading from r with a read buffer of size
// bytes. A non-positive size selects a default.
func NewScanner(r io.Reader, size int) *Scanner {
	if size <= 0 {
		size = readBufSize
	}
	return &Scanner{r: r, buf: make([]byte, 0, size)}
}

// Next returns the next NAL unit. The returned slice is not reused by the
// Scanner. Next returns io.EOF once the stream is exhausted, or the first
// other read error.
func (s *Scanner) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		var err error
		s.cur, err = s.scanZero(s.cur)
		if err != nil {
			return s.finish(err)
		}

		// Count the run of zeros and find the byte that ends it.
		n := 1
		var b byte
		for {
			b, err = s.readByte()
			if err != nil {
				return s.finish(err)
			}
			s.cur = append(s.cur, b)
			if b != 0x00 {
				break
			}
			n++
		}
		if b != 0x01 || n < 2 {
			continue
		}

		nal := s.cur[:len(s.cur)-(n+1)]
		n = min(n, 3)
		s.cur = append(make([]byte, n, nalBufSize), 0x01)
		if len(nal) != 0 {
			return nal, nil
		}
	}
}

// finish records err and returns the final NAL unit, if any.
func (s *Scanner) finish(err error) ([]byte, error) {
	s.err = err
	if err != io.EOF {
		return nil, err
	}
	nal := bytes.TrimRight(s.cur, "\x00")
	s.cur = nil
	if len(nal) == 0 {
		return nil, io.EOF
	}
	return nal, nil
}

// scanZero appends bytes to dst up to and including the next zero byte.
func (s *Scanner) scanZero(dst []byte) ([]byte, error) {
	for {
		i := bytes.IndexByte(s.buf[s.off:], 0x00)
		if i >= 0 {
			dst = append(dst, s.buf[s.off:s.off+i+1]...)
			s.off += i + 1
			return dst, nil
		}
		dst = append(dst, s.buf[s.off:]...)
		err := s.fill()
		if err != nil {
			return dst, err
		}
	}
}

func (s *Scanner) readByte() (byte, error) {
	if s.off >= len(s.buf) {
		err := s.fill()
		if err != nil {
			return 0, err
		}
	}
	b := s.buf[s.off]
	s.off++
	return b, nil
}

// fill refills the read buffer. A read error accompanying data is returned
// by the following fill.
func (s *Scanner) fill() error {
	if s.rerr != nil {
		return s.rerr
	}
	for {
		n, err := s.r.Read(s.buf[:cap(s.buf)])
		s.buf, s.off = s.buf[:n], 0
		if n != 0 {
			s.rerr = err
			return nil
		}
		if err != nil {
			s.rerr = err
			return err
		}
	}
}
