package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"halo/audio"
	"halo/config"
	"halo/log"
	"halo/metrics"
	"halo/session"
	"halo/transcriber"
	"halo/visualizer"
)

// app holds everything a front end needs to build a session controller.
type app struct {
	cfgPath  string
	cfg      *config.Config
	audioCtx audio.Context
	source   *audio.Source
	dialer   transcriber.Dialer
	manager  *transcriber.Manager
	watcher  *config.Watcher

	closeOnce sync.Once
}

func setupLogging() {
	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		return
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

// newApp loads config, opens the audio backend and builds the
// transcription manager. Nothing is captured until a controller activates.
func newApp() (*app, error) {
	setupLogging()

	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.device != "" {
		cfg.Audio.Device = opts.device
	}
	if len(opts.script) > 0 && cfg.Transcription.Credential == "" {
		cfg.Transcription.Credential = "scripted"
	}

	a := &app{cfgPath: path, cfg: cfg}
	if err := a.openAudio(); err != nil {
		log.Close()
		return nil, err
	}

	if len(opts.script) > 0 {
		a.dialer = transcriber.NewFakeDialer(opts.script...)
	} else {
		a.dialer = transcriber.NewGeminiDialer()
	}
	a.manager = transcriber.NewManager(a.dialer, cfg.TranscriberConfig(), nil)

	if opts.metrics != "" {
		addr, err := metrics.Serve(opts.metrics)
		if err != nil {
			log.Warnf("metrics server: %v", err)
		} else {
			log.Infof("metrics listening on http://%s/metrics", addr)
		}
	}

	log.Infof("halo %s starting (config=%s, credential=%s, model=%s)",
		version, path, cfg.MaskedCredential(), cfg.Transcription.Model)
	return a, nil
}

func (a *app) openAudio() error {
	if opts.fakeWAV != "" {
		fc, err := audio.NewFakeContext(opts.fakeWAV, true)
		if err != nil {
			return fmt.Errorf("loading WAV: %w", err)
		}
		a.audioCtx = fc
	} else {
		ctx, err := audio.NewContext()
		if err != nil {
			return fmt.Errorf("initializing audio: %w", err)
		}
		a.audioCtx = ctx
	}

	var dev *audio.DeviceInfo
	var err error
	if opts.pick && opts.fakeWAV == "" {
		dev, err = audio.SelectDevice(a.audioCtx)
	} else {
		dev, err = audio.FindDevice(a.audioCtx, a.cfg.Audio.Device)
	}
	if err != nil {
		a.audioCtx.Close()
		return err
	}
	a.source = audio.NewSource(a.audioCtx, dev)
	return nil
}

// newController wires a session controller and starts applying config
// edits to it. surface may be nil when no visualizer is shown.
func (a *app) newController(ctx context.Context, surface *visualizer.Surface, onFrame func(*visualizer.Surface)) *session.Controller {
	ctrl := session.NewController(session.Options{
		Source:     a.source,
		Manager:    a.manager,
		Surface:    surface,
		FPS:        a.cfg.Visualizer.FPS,
		OnFrame:    onFrame,
		Credential: a.cfg.Transcription.Credential,
	})

	if len(opts.script) > 0 {
		return ctrl
	}
	if err := os.MkdirAll(filepath.Dir(a.cfgPath), 0755); err != nil {
		log.Warnf("config: not watching %s: %v", a.cfgPath, err)
		return ctrl
	}
	w, err := config.Watch(ctx, a.cfgPath, a.cfg, func(c *config.Config) {
		ctrl.SetCredential(c.Transcription.Credential)
	})
	if err != nil {
		log.Warnf("config: not watching %s: %v", a.cfgPath, err)
		return ctrl
	}
	a.watcher = w
	return ctrl
}

func (a *app) deviceLine() string {
	return "mic: " + a.source.DeviceName()
}

func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Close()
		}
		a.audioCtx.Close()
		log.Close()
	})
}
