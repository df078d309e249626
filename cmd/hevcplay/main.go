/*
DESCRIPTION
  hevcplay plays H.265 and H.264 video from a file through a buffer
  exchanging decoder, reporting the slice structure of the stream as it
  goes.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hevcplay is a command line video player using the pump package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/hevcplay/pump"
	"github.com/ausocean/hevcplay/pump/config"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.3.0"

// Logging configuration.
const (
	defaultLogPath = "hevcplay.log"
	logMaxSize     = 100 // MB
	logMaxBackup   = 5
	logMaxAge      = 28 // days
	logVerbosity   = logging.Info
	logSuppress    = false
)

// Misc constants.
const (
	pkg             = "hevcplay: "
	shutdownTimeout = 5 * time.Second
)

// varFlags are command line flags that set configuration variables. They
// take precedence over the config file and environment.
var varFlags = []struct {
	name, key, usage string
}{
	{"input", config.KeyInputPath, "path of the video to play"},
	{"format", config.KeyInputFormat, "input format: annexb, mts or libav (default from the file extension)"},
	{"decoder", config.KeyDecoder, "decoder: emulator or libav"},
	{"surface", config.KeySurface, "presentation surface: null, file or window"},
	{"output", config.KeyOutputPath, "output path for the file surface"},
	{"mime", config.KeyMIME, "MIME type of raw byte stream input"},
	{"width", config.KeyWidth, "coded picture width"},
	{"height", config.KeyHeight, "coded picture height"},
	{"fps", config.KeyFrameRate, "frame rate of raw byte stream input"},
	{"chunk", config.KeyChunkSize, "feed raw byte stream input in chunks of this many bytes"},
	{"loop", config.KeyLoop, "true to loop the input"},
	{"pace", config.KeyPace, "true to present frames in real time"},
	{"log", config.KeyLogging, "log level: Debug, Info, Warning, Error or Fatal"},
	{"metrics", config.KeyMetricsAddress, "address to serve Prometheus metrics on"},
}

func main() {
	showVersion := flag.Bool("version", false, "show version")
	configPath := flag.String("config", "", "path of a TOML config file, watched for log level changes")
	logPath := flag.String("logpath", defaultLogPath, "path of the log file")
	for _, f := range varFlags {
		flag.String(f.name, "", f.usage)
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	defer fileLog.Close()

	log := logging.New(logVerbosity, io.MultiWriter(os.Stderr, fileLog), logSuppress)
	log.Info("starting hevcplay", "version", version)

	cfg, err := loadConfig(log, *configPath, flagVars())
	if err != nil {
		log.Fatal(pkg+"could not load config", "error", err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var opts []pump.Option
	if cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		m, err := pump.NewMetrics(reg)
		if err != nil {
			log.Fatal(pkg+"could not create metrics", "error", err.Error())
		}
		opts = append(opts, pump.WithMetrics(m))
		serveMetrics(gctx, g, log, cfg.MetricsAddress, reg)
	}
	opts = append(opts, pump.OnSlice(func(r pump.SliceReport) {
		if r.NALType.IsIRAP() {
			log.Debug("random access point", "pts", r.PTS, "nalType", r.NALType.String(), "sliceType", r.Type.String())
		}
	}))

	p, err := pump.FromConfig(cfg, opts...)
	if err != nil {
		log.Fatal(pkg+"could not create pump", "error", err.Error())
	}

	if *configPath != "" {
		g.Go(func() error { return watchConfig(gctx, *configPath, p, cfg, log) })
	}

	g.Go(func() error {
		notify(log, daemon.SdNotifyReady)
		err := p.Run(gctx)
		notify(log, daemon.SdNotifyStopping)
		// Playback has finished; stop the metrics server and config watcher.
		cancel()
		return err
	})

	err = g.Wait()
	s := p.Stats()
	log.Info("playback finished",
		"submitted", s.Submitted,
		"presented", s.Presented,
		"skipped", s.Skipped,
		"parseErrors", s.ParseErrors,
		"decodeErrors", s.Exchange.DecodeErrors,
		"intervalMean", s.IntervalMean,
		"intervalStdDev", s.IntervalStdDev,
	)
	if err != nil {
		log.Fatal(pkg+"playback failed", "error", err.Error())
	}
}

// flagVars returns the configuration variables set on the command line.
func flagVars() map[string]string {
	keys := make(map[string]string, len(varFlags))
	for _, f := range varFlags {
		keys[f.name] = f.key
	}
	vars := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		if k, ok := keys[f.Name]; ok {
			vars[k] = f.Value.String()
		}
	})
	return vars
}

// loadConfig builds a config from defaults, then the config file at path if
// any, then the environment, then flags.
func loadConfig(log logging.Logger, path string, flags map[string]string) (config.Config, error) {
	cfg := config.Config{Logger: log, LogLevel: logVerbosity, Suppress: logSuppress}
	if path != "" {
		vars, err := config.LoadTOML(path)
		if err != nil {
			return cfg, err
		}
		log.Debug("config file variables", "vars", vars)
		cfg.Update(vars)
	}

	env, err := config.FromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.Update(env)
	cfg.Update(flags)

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	if cfg.InputPath == "" {
		return cfg, errors.New("no input path, use -input or set InputPath")
	}
	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// serveMetrics serves reg on addr until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, log logging.Logger, addr string, reg *prometheus.Registry) {
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	g.Go(func() error {
		log.Info("serving metrics", "address", addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// watchConfig applies log level changes made to the config file at path
// until ctx is done. Other changes take effect on the next run.
func watchConfig(ctx context.Context, path string, p *pump.Pump, cfg config.Config, log logging.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory, since editors often replace the file.
	err = w.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("could not watch config file: %w", err)
	}
	path = filepath.Clean(path)
	level := cfg.LogLevel

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warning("config watcher error", "error", err.Error())
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			vars, err := config.LoadTOML(path)
			if err != nil {
				log.Warning("could not reload config file", "error", err.Error())
				continue
			}
			c := config.Config{Logger: log, LogLevel: level}
			c.Update(vars)
			if c.LogLevel != level {
				level = c.LogLevel
				p.SetLogLevel(level)
				log.Info("log level changed", "level", level)
			}
		}
	}
}

// notify sends state to systemd if running as a notify service.
func notify(log logging.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warning("could not notify systemd", "state", state, "error", err.Error())
		return
	}
	if sent {
		log.Debug("notified systemd", "state", state)
	}
}
