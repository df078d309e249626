/*
NAME
  lex.go

DESCRIPTION
  lex.go provides a lexer to lex an H.264 Annex B byte stream into access
  units.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h264 provides an H.264 byte stream lexer.
package h264

import (
	"io"
	"time"

	"github.com/ausocean/hevcplay/codec/codecutil"
	"github.com/ausocean/utils/logging"
)

// NAL unit types, see table 7-1 of ITU-T H.264.
const (
	nalTypeNonIDR     = 1
	nalTypeIDR        = 5
	nalTypeSEI        = 6
	nalTypeSPS        = 7
	nalTypePPS        = 8
	nalTypeAUD        = 9
	nalTypePrefix     = 14
	nalTypeReserved18 = 18
)

// Lex lexes H.264 NAL units read from src into access units, each written to
// dst in a single write, with successive writes being performed not earlier
// than the specified delay. An access unit ends before the first of an access
// unit delimiter, SEI, parameter set, NAL unit of type 14 to 18 or first slice
// of a picture that follows a slice (section 7.4.1.2.3 of ITU-T H.264).
// Start codes are kept. Lex returns io.EOF once src is exhausted and the
// final access unit has been written.
func Lex(dst io.Writer, src io.Reader, delay time.Duration, log logging.Logger) error {
	return codecutil.LexAccessUnits(dst, src, delay, classify, log)
}

// classify implements codecutil.Classifier for H.264 NAL units.
func classify(nal []byte) (vcl, begins, ok bool) {
	if len(nal) == 0 || nal[0]&0x80 != 0 {
		return false, false, false
	}
	switch t := nal[0] & 0x1f; {
	case t >= nalTypeNonIDR && t <= nalTypeIDR:
		// first_mb_in_slice is zero, coded as a single 1 bit, for the first
		// slice of a picture. Data partitions B and C carry no slice header.
		first := (t == nalTypeNonIDR || t == nalTypeIDR || t == 2) && len(nal) > 1 && nal[1]&0x80 != 0
		return true, first, true
	case t == nalTypeSEI, t == nalTypeSPS, t == nalTypePPS, t == nalTypeAUD:
		return false, true, true
	case t >= nalTypePrefix && t <= nalTypeReserved18:
		return false, true, true
	default:
		return false, false, true
	}
}
