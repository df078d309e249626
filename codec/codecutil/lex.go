/*
NAME
  lex.go

DESCRIPTION
  lex.go provides pacing of lexer writes and a lexer that splits a byte
  stream into fixed size chunks.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package codecutil provides Annex B byte stream scanning and lexing shared
// by the codec packages.
package codecutil

import (
	"fmt"
	"io"
	"time"
)

// closedTicks is a tick channel that never blocks.
var closedTicks = func() chan time.Time {
	c := make(chan time.Time)
	close(c)
	return c
}()

// pacer returns a channel that can be received from no more often than every
// delay, and a func that releases its resources. A zero delay never blocks.
func pacer(delay time.Duration) (<-chan time.Time, func(), error) {
	switch {
	case delay < 0:
		return nil, nil, fmt.Errorf("invalid delay: %v", delay)
	case delay == 0:
		return closedTicks, func() {}, nil
	}
	t := time.NewTicker(delay)
	return t.C, t.Stop, nil
}

// ChunkLexer splits a byte stream into chunks of a fixed size with no regard
// for the syntax of the stream. It is used to feed a decoder that finds unit
// boundaries itself.
type ChunkLexer struct {
	size int
}

// NewChunkLexer returns a ChunkLexer writing chunks of size bytes.
func NewChunkLexer(size int) (*ChunkLexer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", size)
	}
	return &ChunkLexer{size: size}, nil
}

// Lex reads chunks from src and writes each to dst in a single write, no more
// often than every delay. Only the final chunk may be short. Lex returns
// io.EOF once src is exhausted and all data has been written, or the first
// other read or write error.
func (l *ChunkLexer) Lex(dst io.Writer, src io.Reader, delay time.Duration) error {
	tick, stop, err := pacer(delay)
	if err != nil {
		return err
	}
	defer stop()

	buf := make([]byte, l.size)
	for {
		n, rerr := io.ReadFull(src, buf)
		if n != 0 {
			<-tick
			_, err = dst.Write(buf[:n])
			if err != nil {
				return err
			}
		}
		switch rerr {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return io.EOF
		default:
			return rerr
		}
	}
}
