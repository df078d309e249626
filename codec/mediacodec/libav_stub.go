//go:build !withlibav
// +build !withlibav

/*
NAME
  libav_stub.go

DESCRIPTION
  Replaces the libav codec when building without libav installed.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import "fmt"

func libavSupported(mime string) bool { return false }

// LibAV is not available in this build.
type LibAV struct {
	*slotCodec
}

// NewLibAV returns ErrUnsupported; build with the withlibav tag for libav
// decoding.
func NewLibAV(p Pools) (*LibAV, error) {
	return nil, fmt.Errorf("libav codec not built: %w", ErrUnsupported)
}
