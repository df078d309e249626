/*
DESCRIPTIONS
  helpers.go provides stream type helpers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

import "errors"

// Stream types as per ITU-T Rec. H.222.0 / ISO/IEC 13818-1 [1], table 2-34.
const (
	H264ST = 0x1b
	H265ST = 0x24
)

// ErrUnknownStreamType is returned by StreamTypeMIME for stream types that
// are not video we can decode.
var ErrUnknownStreamType = errors.New("unknown stream type")

// StreamTypeMIME will return the corresponding MIME type for the passed
// stream type.
func StreamTypeMIME(st uint8) (string, error) {
	switch st {
	case H264ST:
		return "video/avc", nil
	case H265ST:
		return "video/hevc", nil
	default:
		return "", ErrUnknownStreamType
	}
}
