/*
NAME
  lex.go

DESCRIPTION
  lex.go provides a lexer to lex an H.265 Annex B byte stream into access
  units.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h265 provides an H.265 byte stream lexer and NAL unit framing
// helpers.
package h265

import (
	"io"
	"time"

	"github.com/ausocean/hevcplay/codec/codecutil"
	"github.com/ausocean/hevcplay/codec/h265/h265dec"
	"github.com/ausocean/utils/logging"
)

// Lex lexes H.265 NAL units read from src into access units, each written to
// dst in a single write, with successive writes being performed not earlier
// than the specified delay. An access unit ends before the first of an access
// unit delimiter, parameter set, prefix SEI, reserved prefix type or first
// slice segment of a picture that follows a slice segment (section 7.4.2.4.4
// of ITU-T H.265). Start codes are kept. Lex returns io.EOF once src is
// exhausted and the final access unit has been written.
func Lex(dst io.Writer, src io.Reader, delay time.Duration, log logging.Logger) error {
	return codecutil.LexAccessUnits(dst, src, delay, classify, log)
}

// classify implements codecutil.Classifier for H.265 NAL units.
func classify(nal []byte) (vcl, begins, ok bool) {
	h, err := h265dec.ParseHeader(nal)
	if err != nil {
		return false, false, false
	}
	return h.Type.IsVCL(), beginsAccessUnit(h.Type, nal), true
}

// beginsAccessUnit returns true if a NAL unit of type t with payload nal
// (header included) starts a new access unit when it follows a slice segment
// of the current access unit.
func beginsAccessUnit(t h265dec.NALType, nal []byte) bool {
	switch {
	case t == h265dec.NALTypeAUD, t == h265dec.NALTypeVPS, t == h265dec.NALTypeSPS,
		t == h265dec.NALTypePPS, t == h265dec.NALTypePrefixSEI:
		return true
	case t >= 41 && t <= 44, t >= 48 && t <= 55:
		return true
	case t.IsVCL():
		// first_slice_segment_in_pic_flag is the first bit after the header.
		return len(nal) > h265dec.HeaderSize && nal[h265dec.HeaderSize]&0x80 != 0
	default:
		return false
	}
}
