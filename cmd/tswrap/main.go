/*
DESCRIPTION
  tswrap wraps a raw H.265 byte stream in MPEG-TS, one PES packet per
  access unit, producing clips that hevcplay can play with the mts input
  format.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tswrap is a command that wraps H.265 byte streams in MPEG-TS.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/h265"
	"github.com/ausocean/hevcplay/container/mts"
)

// Logging configuration.
const (
	logVerbosity = logging.Info
	logSuppress  = false
)

const pkg = "tswrap: "

func main() {
	in := flag.String("input", "", "path of the H.265 byte stream")
	out := flag.String("output", "out.ts", "path of the MPEG-TS output")
	fps := flag.Float64("fps", 25, "frame rate used for timestamps")
	offset := flag.Duration("pts-offset", 0, "timestamp of the first access unit")
	verbose := flag.Bool("v", false, "log each access unit")
	flag.Parse()

	log := logging.New(logVerbosity, os.Stderr, logSuppress)
	if *verbose {
		log.SetLevel(logging.Debug)
	}
	if *in == "" {
		log.Fatal(pkg + "no input path, use -input")
	}

	src, err := os.Open(*in)
	if err != nil {
		log.Fatal(pkg+"could not open input", "error", err.Error())
	}
	defer src.Close()

	dst, err := os.Create(*out)
	if err != nil {
		log.Fatal(pkg+"could not create output", "error", err.Error())
	}

	n, err := wrap(dst, src, *fps, *offset, log)
	if err != nil {
		dst.Close()
		log.Fatal(pkg+"could not wrap input", "error", err.Error())
	}
	err = dst.Close()
	if err != nil {
		log.Fatal(pkg+"could not close output", "error", err.Error())
	}
	log.Info("wrapped input", "input", *in, "output", *out, "accessUnits", n)
}

// wrap lexes the H.265 byte stream src into access units and writes them to
// dst as MPEG-TS at the given frame rate. It returns the number of access
// units written.
func wrap(dst io.Writer, src io.Reader, fps float64, offset time.Duration, log logging.Logger) (int, error) {
	enc, err := mts.NewEncoder(dst, log, mts.Rate(fps), mts.PTSOffset(offset))
	if err != nil {
		return 0, fmt.Errorf("could not create encoder: %w", err)
	}
	w := &countWriter{w: enc}
	err = h265.Lex(w, src, 0, log)
	if !errors.Is(err, io.EOF) {
		return w.n, err
	}
	return w.n, nil
}

// countWriter counts the writes made to w.
type countWriter struct {
	w io.Writer
	n int
}

func (c *countWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	if err == nil {
		c.n++
	}
	return n, err
}
