/*
NAME
  new.go

DESCRIPTION
  new.go provides construction of named Codec implementations.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import "fmt"

// Codec names accepted by New.
const (
	NameEmulator = "emulator"
	NameLibAV    = "libav"
)

// Pools holds buffer pool dimensions. Zero fields take implementation
// defaults, except that the emulator permits zero input slots when
// ZeroInputSlots is set.
type Pools struct {
	InputSlots     int
	OutputSlots    int
	InputCapacity  int
	ZeroInputSlots bool
	PixelFormat    PixelFormat
}

// New returns the Codec with the given name.
func New(name string, p Pools) (Codec, error) {
	switch name {
	case NameEmulator:
		var opts []func(*Emulator) error
		if p.InputSlots > 0 || p.ZeroInputSlots {
			opts = append(opts, InputSlots(p.InputSlots))
		}
		if p.OutputSlots > 0 {
			opts = append(opts, OutputSlots(p.OutputSlots))
		}
		if p.InputCapacity > 0 {
			opts = append(opts, InputCapacity(p.InputCapacity))
		}
		if p.PixelFormat != PixelFormatUnknown {
			opts = append(opts, OutputPixelFormat(p.PixelFormat))
		}
		e, err := NewEmulator(opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	case NameLibAV:
		l, err := NewLibAV(p)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown codec %q: %w", name, ErrUnsupported)
	}
}

// Supported returns true if a codec available in this build can decode the
// given MIME type with hardware style buffer exchange.
func Supported(name, mime string) bool {
	switch name {
	case NameEmulator:
		return emulatorMIMEs[mime]
	case NameLibAV:
		return libavSupported(mime)
	default:
		return false
	}
}
