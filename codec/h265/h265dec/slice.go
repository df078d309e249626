/*
DESCRIPTION
  slice.go provides parsing of the leading fields of an H.265 slice segment
  header, as defined in section 7.3.6.1, up to and including slice_type.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265dec

import (
	"github.com/pkg/errors"

	"github.com/ausocean/hevcplay/codec/h265/h265dec/bits"
)

// SliceType is the prediction type of a slice.
type SliceType uint8

// Slice types.
const (
	SliceTypeP SliceType = iota
	SliceTypeB
	SliceTypeI
)

// sliceTypes maps coded slice_type values to slice types.
var sliceTypes = map[uint64]SliceType{
	0: SliceTypeP,
	1: SliceTypeB,
	2: SliceTypeI,
}

// ErrUnrecognizedSliceType is returned when slice_type is not a key of
// sliceTypes.
var ErrUnrecognizedSliceType = errors.New("unrecognized slice type")

// String returns a single letter name for the slice type.
func (t SliceType) String() string {
	switch t {
	case SliceTypeP:
		return "P"
	case SliceTypeB:
		return "B"
	case SliceTypeI:
		return "I"
	default:
		return "unknown"
	}
}

// SliceInfo holds the slice segment header fields read by ParseSlice.
type SliceInfo struct {
	// first_slice_segment_in_pic_flag.
	FirstSliceInPic bool

	// slice_pic_parameter_set_id.
	PPSID uint64

	// slice_type.
	Type SliceType
}

// ParseSlice reads, from the NAL unit nal (header included), the fields of
// the slice segment header leading up to slice_type. These fields are read
// in order: first_slice_segment_in_pic_flag, slice_pic_parameter_set_id and
// slice_type. Fields that depend on parameter set state are not present in
// this ordering and are not read. The NAL unit type is not checked; callers
// should use NALType.IsSlice first.
func ParseSlice(nal []byte) (*SliceInfo, error) {
	c, err := bits.NewCursor(nal, 8*HeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not position cursor after NAL header")
	}
	r := newFieldReader(c)

	s := &SliceInfo{}
	s.FirstSliceInPic = r.readFlag()
	s.PPSID = r.readUe()
	t := r.readUe()
	if r.err() != nil {
		return nil, errors.Wrap(r.err(), "error from fieldReader")
	}

	var ok bool
	s.Type, ok = sliceTypes[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnrecognizedSliceType, "slice_type %d", t)
	}
	return s, nil
}

// ParseSliceType returns the slice type of the slice segment carried by nal.
func ParseSliceType(nal []byte) (SliceType, error) {
	s, err := ParseSlice(nal)
	if err != nil {
		return 0, err
	}
	return s.Type, nil
}
