/*
NAME
  nalu.go

DESCRIPTION
  nalu.go provides Annex B byte stream scanning and access unit lexing
  shared by the H.264 and H.265 lexers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package codecutil

import (
	"io"
	"time"

	"github.com/ausocean/utils/logging"
)

// ScanNALUs reads an Annex B byte stream from src and calls fn with each NAL
// unit, as split by a Scanner. ScanNALUs returns io.EOF once src is exhausted
// and the final NAL unit has been passed to fn, or the first other error.
func ScanNALUs(src io.Reader, fn func(nal []byte) error) error {
	s := NewScanner(src, readBufSize)
	for {
		nal, err := s.Next()
		if err != nil {
			return err
		}
		err = fn(nal)
		if err != nil {
			return err
		}
	}
}

// StartCodeLen returns the length of the start code at the beginning of b,
// or 0 if b does not begin with one.
func StartCodeLen(b []byte) int {
	switch {
	case len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1:
		return 3
	case len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1:
		return 4
	default:
		return 0
	}
}

// Classifier reports, for a NAL unit without its start code, whether it
// carries coded slice data and whether it begins a new access unit when it
// follows coded slice data of the current access unit. ok is false for NAL
// units that cannot be classified; these are dropped with a warning.
type Classifier func(nal []byte) (vcl, begins, ok bool)

// LexAccessUnits lexes NAL units read from src into access units, each
// written to dst in a single write, with successive writes being performed
// not earlier than the specified delay. Access unit boundaries are found with
// classify. Start codes are kept. LexAccessUnits returns io.EOF once src is
// exhausted and the final access unit has been written.
func LexAccessUnits(dst io.Writer, src io.Reader, delay time.Duration, classify Classifier, log logging.Logger) error {
	tick, stop, err := pacer(delay)
	if err != nil {
		return err
	}
	defer stop()

	l := &auLexer{dst: dst, tick: tick, classify: classify, log: log}
	err = ScanNALUs(src, l.nal)
	if err != io.EOF {
		return err
	}
	err = l.flush()
	if err != nil {
		return err
	}
	return io.EOF
}

// auLexer accumulates NAL units into access units.
type auLexer struct {
	dst      io.Writer
	tick     <-chan time.Time
	classify Classifier
	log      logging.Logger
	au       []byte
	sawVCL   bool
}

// nal adds the NAL unit b, which includes its start code, to the current
// access unit, first writing out the current access unit if b begins a new
// one.
func (l *auLexer) nal(b []byte) error {
	sc := StartCodeLen(b)
	if sc == 0 {
		return nil
	}
	vcl, begins, ok := l.classify(b[sc:])
	if !ok {
		l.log.Warning("dropping unclassifiable NAL unit", "len", len(b)-sc, "auLen", len(l.au))
		return nil
	}

	if l.sawVCL && begins {
		err := l.flush()
		if err != nil {
			return err
		}
	}
	l.au = append(l.au, b...)
	if vcl {
		l.sawVCL = true
	}
	return nil
}

// flush writes the current access unit to dst.
func (l *auLexer) flush() error {
	if len(l.au) == 0 {
		return nil
	}
	<-l.tick
	_, err := l.dst.Write(l.au)
	l.au = nil
	l.sawVCL = false
	return err
}
