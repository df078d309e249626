/*
DESCRIPTION
  annexb.go provides AnnexB, a Demuxer for files holding a raw H.265 or
  H.264 Annex B byte stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/codecutil"
	"github.com/ausocean/hevcplay/codec/h264"
	"github.com/ausocean/hevcplay/codec/h265"
	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/device"
	"github.com/ausocean/hevcplay/device/file"
)

var errClosed = errors.New("demuxer closed")

// lexFunc lexes src into units written to dst.
type lexFunc func(dst io.Writer, src io.Reader, delay time.Duration) error

// AnnexB is a Demuxer for raw byte stream files. A lexer runs in its own
// routine, splitting the file into access units, or fixed size chunks if a
// chunk size is set. Timestamps are synthesised from the frame rate.
type AnnexB struct {
	settings
	log logging.Logger

	src  device.Source
	aus  chan []byte
	done chan struct{}
	err  error // Lexer result, valid once aus is closed.
	n    int   // Units returned.

	closeOnce sync.Once
	closeErr  error
}

// NewAnnexB returns a new AnnexB demuxer.
func NewAnnexB(log logging.Logger, options ...Option) (*AnnexB, error) {
	d := &AnnexB{settings: defaultSettings(), log: log}
	err := apply(&d.settings, options)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open starts lexing the file at uri.
func (d *AnnexB) Open(uri string) (StreamSet, error) {
	if d.src != nil {
		return nil, errors.New("demuxer already open")
	}

	var lex lexFunc = func(dst io.Writer, src io.Reader, delay time.Duration) error {
		return h265.Lex(dst, src, delay, d.log)
	}
	if d.mime == mediacodec.MIMEAVC {
		lex = func(dst io.Writer, src io.Reader, delay time.Duration) error {
			return h264.Lex(dst, src, delay, d.log)
		}
	}
	if d.chunkSize > 0 {
		l, err := codecutil.NewChunkLexer(d.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("could not create chunk lexer: %w", err)
		}
		lex = l.Lex
	}

	d.src = file.NewWith(d.log, uri, d.loop)
	err := d.src.Start()
	if err != nil {
		d.src = nil
		return nil, fmt.Errorf("could not open input: %w", err)
	}

	d.aus = make(chan []byte)
	d.done = make(chan struct{})
	go func() {
		d.err = lex(&unitWriter{aus: d.aus, done: d.done}, d.src, 0)
		close(d.aus)
	}()

	d.log.Info("opened byte stream input", "path", uri, "chunkSize", d.chunkSize, "loop", d.loop)
	return StreamSet{{Index: 0, MIME: d.mime}}, nil
}

// NextAccessUnit returns the next lexed unit.
func (d *AnnexB) NextAccessUnit() (*AccessUnit, error) {
	if d.aus == nil {
		return nil, ErrNotOpen
	}
	b, ok := <-d.aus
	if !ok {
		if d.err == nil || errors.Is(d.err, io.EOF) || errors.Is(d.err, errClosed) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("could not lex input: %w", d.err)
	}
	au := &AccessUnit{Data: b, PTS: time.Duration(d.n) * d.period()}
	d.n++
	return au, nil
}

// VideoStreamIndex returns 0; the byte stream is the only stream.
func (d *AnnexB) VideoStreamIndex() (int, bool) { return 0, true }

// Close stops the lexer and closes the file.
func (d *AnnexB) Close() error {
	d.closeOnce.Do(func() {
		if d.src == nil {
			return
		}
		close(d.done)
		d.closeErr = d.src.Stop()
		for range d.aus {
		}
	})
	return d.closeErr
}

// unitWriter passes each write, copied, to a channel.
type unitWriter struct {
	aus  chan<- []byte
	done <-chan struct{}
}

func (w *unitWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case w.aus <- b:
		return len(p), nil
	case <-w.done:
		return 0, errClosed
	}
}
