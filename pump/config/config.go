/*
DESCRIPTION
  config.go provides the Config struct holding the parameters of a pump
  instance.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for the pump.
package config

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// Input formats.
const (
	FormatAuto   = ""
	FormatAnnexB = "annexb"
	FormatMTS    = "mts"
	FormatLibAV  = "libav"
)

// Config provides parameters relevant to a pump instance. A new config must
// be passed to the constructor. Default values for these fields are defined
// as consts in variables.go.
type Config struct {
	// Logger holds an implementation of the Logger interface. This must be set
	// for the pump to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Suppress bool // Holds logger suppression state.

	// InputPath is the location of the compressed video to play.
	InputPath string

	// InputFormat selects the demuxer. Valid values are FormatAnnexB,
	// FormatMTS and FormatLibAV. If unset the format is chosen from the
	// InputPath extension.
	InputFormat string

	// ChunkSize, if non zero, causes raw byte stream input to be fed to the
	// decoder in chunks of this many bytes rather than as access units.
	ChunkSize uint

	Loop bool // If true will restart reading of input after an io.EOF.

	MIME           string // MIME type of the compressed video, e.g. video/hevc.
	Width          uint   // Width of the coded pictures.
	Height         uint   // Height of the coded pictures.
	FrameRate      uint   // Frames per second, used for synthesised timestamps and pacing.
	Bitrate        uint   // Bitrate hint for the decoder in bits per second.
	IFrameInterval uint   // Key frame interval hint for the decoder in seconds.

	// Decoder names the codec implementation, see mediacodec.New.
	Decoder string

	InputSlots    uint // Number of decoder input buffers, 0 for the decoder default.
	OutputSlots   uint // Number of decoder output buffers, 0 for the decoder default.
	InputCapacity uint // Size in bytes of each decoder input buffer.

	// DequeueTimeout bounds every wait for a decoder buffer.
	DequeueTimeout time.Duration

	// DrainPolls is the number of consecutive empty output polls after which
	// draining gives up waiting for the end of stream buffer.
	DrainPolls uint

	// Surface names the presentation surface kind, see surface.New.
	Surface string

	// OutputPath defines the output destination for file surfaces.
	OutputPath string

	// Pace, if true, presents frames no earlier than their timestamps
	// relative to the first presented frame.
	Pace bool

	// MetricsAddress, if set, is the address to serve Prometheus metrics on.
	MetricsAddress string
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
