//go:build !withlibav
// +build !withlibav

/*
DESCRIPTION
  libav_stub.go replaces libav.go when built without libav support.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import "github.com/ausocean/utils/logging"

// LibAV is a Demuxer backed by libavformat. It is unavailable in this build.
type LibAV struct{}

// NewLibAV returns ErrUnsupported; build with the withlibav tag.
func NewLibAV(log logging.Logger, options ...Option) (*LibAV, error) {
	return nil, ErrUnsupported
}

func (*LibAV) Open(string) (StreamSet, error)       { return nil, ErrUnsupported }
func (*LibAV) NextAccessUnit() (*AccessUnit, error) { return nil, ErrUnsupported }
func (*LibAV) VideoStreamIndex() (int, bool)        { return -1, false }
func (*LibAV) Close() error                         { return nil }
