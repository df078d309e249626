/*
DESCRIPTION
  nalunit.go provides the NAL unit header structure and NAL unit type
  classification defined in section 7.3.1.2 and table 7-1 of ITU-T H.265.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265dec

import (
	"errors"
	"fmt"
)

// HeaderSize is the size in bytes of an H.265 NAL unit header.
const HeaderSize = 2

// ErrTooShort is returned when a buffer is too short to hold a NAL unit header.
var ErrTooShort = errors.New("buffer too short for NAL unit header")

// NALType is an H.265 nal_unit_type. See table 7-1.
type NALType uint8

// NAL unit types.
const (
	NALTypeTrailN       NALType = 0
	NALTypeTrailR       NALType = 1
	NALTypeTSAN         NALType = 2
	NALTypeTSAR         NALType = 3
	NALTypeSTSAN        NALType = 4
	NALTypeSTSAR        NALType = 5
	NALTypeRADLN        NALType = 6
	NALTypeRADLR        NALType = 7
	NALTypeRASLN        NALType = 8
	NALTypeRASLR        NALType = 9
	NALTypeBLAWLP       NALType = 16
	NALTypeBLAWRADL     NALType = 17
	NALTypeBLANLP       NALType = 18
	NALTypeIDRWRADL     NALType = 19
	NALTypeIDRNLP       NALType = 20
	NALTypeCRA          NALType = 21
	NALTypeRsvIRAP22    NALType = 22
	NALTypeRsvIRAP23    NALType = 23
	NALTypeVPS          NALType = 32
	NALTypeSPS          NALType = 33
	NALTypePPS          NALType = 34
	NALTypeAUD          NALType = 35
	NALTypeEOS          NALType = 36
	NALTypeEOB          NALType = 37
	NALTypeFD           NALType = 38
	NALTypePrefixSEI    NALType = 39
	NALTypeSuffixSEI    NALType = 40
	NALTypeAggregation  NALType = 48
	NALTypeFragmentUnit NALType = 49
	NALTypePACI         NALType = 50
)

var nalTypeNames = map[NALType]string{
	NALTypeTrailN:       "TRAIL_N",
	NALTypeTrailR:       "TRAIL_R",
	NALTypeTSAN:         "TSA_N",
	NALTypeTSAR:         "TSA_R",
	NALTypeSTSAN:        "STSA_N",
	NALTypeSTSAR:        "STSA_R",
	NALTypeRADLN:        "RADL_N",
	NALTypeRADLR:        "RADL_R",
	NALTypeRASLN:        "RASL_N",
	NALTypeRASLR:        "RASL_R",
	NALTypeBLAWLP:       "BLA_W_LP",
	NALTypeBLAWRADL:     "BLA_W_RADL",
	NALTypeBLANLP:       "BLA_N_LP",
	NALTypeIDRWRADL:     "IDR_W_RADL",
	NALTypeIDRNLP:       "IDR_N_LP",
	NALTypeCRA:          "CRA_NUT",
	NALTypeRsvIRAP22:    "RSV_IRAP_VCL22",
	NALTypeRsvIRAP23:    "RSV_IRAP_VCL23",
	NALTypeVPS:          "VPS_NUT",
	NALTypeSPS:          "SPS_NUT",
	NALTypePPS:          "PPS_NUT",
	NALTypeAUD:          "AUD_NUT",
	NALTypeEOS:          "EOS_NUT",
	NALTypeEOB:          "EOB_NUT",
	NALTypeFD:           "FD_NUT",
	NALTypePrefixSEI:    "PREFIX_SEI_NUT",
	NALTypeSuffixSEI:    "SUFFIX_SEI_NUT",
	NALTypeAggregation:  "AP",
	NALTypeFragmentUnit: "FU",
	NALTypePACI:         "PACI",
}

// String returns the name of the NAL unit type as written in table 7-1.
func (t NALType) String() string {
	if s, ok := nalTypeNames[t]; ok {
		return s
	}
	switch {
	case t <= 31:
		return fmt.Sprintf("RSV_VCL%d", t)
	case t <= 47:
		return fmt.Sprintf("RSV_NVCL%d", t)
	default:
		return fmt.Sprintf("UNSPEC%d", t)
	}
}

// IsSlice returns true if NAL units of this type carry a slice segment, and
// therefore a slice segment header.
func (t NALType) IsSlice() bool {
	switch t {
	case NALTypeTrailN, NALTypeTrailR,
		NALTypeTSAN, NALTypeTSAR,
		NALTypeSTSAN, NALTypeSTSAR,
		NALTypeRADLN, NALTypeRADLR,
		NALTypeRASLN, NALTypeRASLR,
		NALTypeBLAWLP, NALTypeBLAWRADL, NALTypeBLANLP,
		NALTypeIDRWRADL, NALTypeIDRNLP,
		NALTypeCRA:
		return true
	default:
		return false
	}
}

// IsVCL returns true for video coding layer types, including reserved ones.
func (t NALType) IsVCL() bool { return t <= 31 }

// IsIRAP returns true for intra random access point types (16 to 23).
func (t NALType) IsIRAP() bool { return t >= NALTypeBLAWLP && t <= NALTypeRsvIRAP23 }

// IsKeyframe returns true if a decoder may start decoding at a NAL unit of
// this type.
func (t NALType) IsKeyframe() bool {
	switch t {
	case NALTypeIDRWRADL, NALTypeIDRNLP, NALTypeCRA,
		NALTypeBLAWLP, NALTypeBLAWRADL, NALTypeBLANLP:
		return true
	default:
		return false
	}
}

// Header describes an H.265 NAL unit header as defined in section 7.3.1.2.
type Header struct {
	// nal_unit_type.
	Type NALType

	// nuh_layer_id, 0 for base layer units.
	LayerID uint8

	// TemporalId, i.e. nuh_temporal_id_plus1 - 1. A conforming stream never
	// has nuh_temporal_id_plus1 equal to 0; if it does this is -1.
	TemporalID int8
}

// ParseHeader parses the NAL unit header in the first two bytes of b. The
// forbidden_zero_bit is not checked.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTooShort
	}
	return Header{
		Type:       NALType((b[0] >> 1) & 0x3f),
		LayerID:    (b[0]&0x01)<<5 | b[1]>>3,
		TemporalID: int8(b[1]&0x07) - 1,
	}, nil
}

// NALUnit is a NAL unit view into an access unit buffer. Data includes the
// header bytes.
type NALUnit struct {
	Header
	Data []byte
}

// NewNALUnit returns a NALUnit for the bytes in b. b is not copied.
func NewNALUnit(b []byte) (*NALUnit, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	return &NALUnit{Header: h, Data: b}, nil
}
