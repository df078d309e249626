/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, Type
  in a string format, a function for updating the variable in the Config
  struct from a string, and finally, a validation function to check the
  validity of the corresponding field value in the Config.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/device/surface"
	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyBitrate        = "Bitrate"
	KeyChunkSize      = "ChunkSize"
	KeyDecoder        = "Decoder"
	KeyDequeueTimeout = "DequeueTimeout"
	KeyDrainPolls     = "DrainPolls"
	KeyFrameRate      = "FrameRate"
	KeyHeight         = "Height"
	KeyIFrameInterval = "IFrameInterval"
	KeyInputCapacity  = "InputCapacity"
	KeyInputFormat    = "InputFormat"
	KeyInputPath      = "InputPath"
	KeyInputSlots     = "InputSlots"
	KeyLogging        = "logging"
	KeyLoop           = "Loop"
	KeyMetricsAddress = "MetricsAddress"
	KeyMIME           = "MIME"
	KeyOutputPath     = "OutputPath"
	KeyOutputSlots    = "OutputSlots"
	KeyPace           = "Pace"
	KeySuppress       = "Suppress"
	KeySurface        = "Surface"
	KeyWidth          = "Width"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultVerbosity      = logging.Error
	defaultMIME           = mediacodec.MIMEHEVC
	defaultWidth          = 1280
	defaultHeight         = 720
	defaultFrameRate      = 60
	defaultBitrate        = 8000000
	defaultIFrameInterval = 1
	defaultDecoder        = mediacodec.NameEmulator
	defaultInputCapacity  = 1 << 20 // bytes
	defaultDequeueTimeout = 10 * time.Millisecond
	defaultDrainPolls     = 100
	defaultSurface        = surface.KindNull
	maxFrameRate          = 240
)

// Variables describes the variables that can be used for pump control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyBitrate,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Bitrate = parseUint(KeyBitrate, v, c) },
		Validate: func(c *Config) {
			if c.Bitrate == 0 {
				c.LogInvalidField(KeyBitrate, defaultBitrate)
				c.Bitrate = defaultBitrate
			}
		},
	},
	{
		Name:   KeyDecoder,
		Type:   "enum:" + mediacodec.NameEmulator + "," + mediacodec.NameLibAV,
		Update: func(c *Config, v string) { c.Decoder = strings.ToLower(v) },
		Validate: func(c *Config) {
			switch c.Decoder {
			case mediacodec.NameEmulator, mediacodec.NameLibAV:
			default:
				c.LogInvalidField(KeyDecoder, defaultDecoder)
				c.Decoder = defaultDecoder
			}
		},
	},
	{
		Name: KeyDequeueTimeout,
		Type: typeUint,
		Update: func(c *Config, v string) {
			c.DequeueTimeout = time.Duration(parseUint(KeyDequeueTimeout, v, c)) * time.Millisecond
		},
		Validate: func(c *Config) {
			if c.DequeueTimeout <= 0 {
				c.LogInvalidField(KeyDequeueTimeout, defaultDequeueTimeout)
				c.DequeueTimeout = defaultDequeueTimeout
			}
		},
	},
	{
		Name:   KeyDrainPolls,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.DrainPolls = parseUint(KeyDrainPolls, v, c) },
		Validate: func(c *Config) {
			if c.DrainPolls == 0 {
				c.LogInvalidField(KeyDrainPolls, defaultDrainPolls)
				c.DrainPolls = defaultDrainPolls
			}
		},
	},
	{
		Name:   KeyFrameRate,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FrameRate = parseUint(KeyFrameRate, v, c) },
		Validate: func(c *Config) {
			if c.FrameRate == 0 || c.FrameRate > maxFrameRate {
				c.LogInvalidField(KeyFrameRate, defaultFrameRate)
				c.FrameRate = defaultFrameRate
			}
		},
	},
	{
		Name:   KeyHeight,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Height = parseUint(KeyHeight, v, c) },
		Validate: func(c *Config) {
			if c.Height == 0 || c.Height%2 != 0 {
				c.LogInvalidField(KeyHeight, defaultHeight)
				c.Height = defaultHeight
			}
		},
	},
	{
		Name:   KeyIFrameInterval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.IFrameInterval = parseUint(KeyIFrameInterval, v, c) },
		Validate: func(c *Config) {
			if c.IFrameInterval == 0 {
				c.LogInvalidField(KeyIFrameInterval, defaultIFrameInterval)
				c.IFrameInterval = defaultIFrameInterval
			}
		},
	},
	{
		Name:   KeyInputCapacity,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.InputCapacity = parseUint(KeyInputCapacity, v, c) },
		Validate: func(c *Config) {
			if c.InputCapacity == 0 {
				c.LogInvalidField(KeyInputCapacity, defaultInputCapacity)
				c.InputCapacity = defaultInputCapacity
			}
		},
	},
	// ChunkSize is validated against InputCapacity so must follow it.
	{
		Name:   KeyChunkSize,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ChunkSize = parseUint(KeyChunkSize, v, c) },
		Validate: func(c *Config) {
			if c.ChunkSize > c.InputCapacity {
				c.LogInvalidField(KeyChunkSize, c.InputCapacity)
				c.ChunkSize = c.InputCapacity
			}
		},
	},
	{
		Name:   KeyInputFormat,
		Type:   "enum:," + FormatAnnexB + "," + FormatMTS + "," + FormatLibAV,
		Update: func(c *Config, v string) { c.InputFormat = strings.ToLower(v) },
		Validate: func(c *Config) {
			switch c.InputFormat {
			case FormatAuto, FormatAnnexB, FormatMTS, FormatLibAV:
			default:
				c.LogInvalidField(KeyInputFormat, FormatAuto)
				c.InputFormat = FormatAuto
			}
		},
	},
	{
		Name:   KeyInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputPath = v },
	},
	{
		Name:   KeyInputSlots,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.InputSlots = parseUint(KeyInputSlots, v, c) },
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyLoop,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Loop = parseBool(KeyLoop, v, c) },
	},
	{
		Name:   KeyMetricsAddress,
		Type:   typeString,
		Update: func(c *Config, v string) { c.MetricsAddress = v },
	},
	{
		Name:   KeyMIME,
		Type:   "enum:" + mediacodec.MIMEHEVC + "," + mediacodec.MIMEAVC,
		Update: func(c *Config, v string) { c.MIME = v },
		Validate: func(c *Config) {
			switch c.MIME {
			case mediacodec.MIMEHEVC, mediacodec.MIMEAVC:
			default:
				c.LogInvalidField(KeyMIME, defaultMIME)
				c.MIME = defaultMIME
			}
		},
	},
	{
		Name:   KeyOutputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.OutputPath = v },
	},
	{
		Name:   KeyOutputSlots,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.OutputSlots = parseUint(KeyOutputSlots, v, c) },
	},
	{
		Name:   KeyPace,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Pace = parseBool(KeyPace, v, c) },
	},
	{
		Name:   KeySuppress,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Suppress = parseBool(KeySuppress, v, c) },
	},
	{
		Name:   KeySurface,
		Type:   "enum:" + surface.KindNull + "," + surface.KindFile + "," + surface.KindWindow,
		Update: func(c *Config, v string) { c.Surface = strings.ToLower(v) },
		Validate: func(c *Config) {
			switch c.Surface {
			case surface.KindNull, surface.KindWindow:
			case surface.KindFile:
				if c.OutputPath == "" {
					c.LogInvalidField(KeySurface, defaultSurface)
					c.Surface = defaultSurface
				}
			default:
				c.LogInvalidField(KeySurface, defaultSurface)
				c.Surface = defaultSurface
			}
		},
	},
	{
		Name:   KeyWidth,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Width = parseUint(KeyWidth, v, c) },
		Validate: func(c *Config) {
			if c.Width == 0 || c.Width%2 != 0 {
				c.LogInvalidField(KeyWidth, defaultWidth)
				c.Width = defaultWidth
			}
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}
