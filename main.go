// Package main provides a daemon that keeps a studio microphone at a healthy
// level: it samples the capture chain over RTSP, measures the noise floor in a
// configurable band, and steps the ALSA input gain up or down between bounds.
//
// Usage:
//
//	autogain [-config path/to/config.json]
//	autogain -calibrate mic.json [-apply]
//
// If -config is not specified, the daemon looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/alsa"
	"github.com/oszuidwest/zwfm-autogain/internal/audio"
	"github.com/oszuidwest/zwfm-autogain/internal/calibration"
	"github.com/oszuidwest/zwfm-autogain/internal/config"
	"github.com/oszuidwest/zwfm-autogain/internal/control"
	"github.com/oszuidwest/zwfm-autogain/internal/dsp"
	"github.com/oszuidwest/zwfm-autogain/internal/dump"
	"github.com/oszuidwest/zwfm-autogain/internal/events"
	"github.com/oszuidwest/zwfm-autogain/internal/notify"
	"github.com/oszuidwest/zwfm-autogain/internal/recovery"
	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	calibratePath := flag.String("calibrate", "", "Derive thresholds and gain bounds from a microphone profile JSON file and exit")
	applyCalibration := flag.Bool("apply", false, "With -calibrate: persist the derived values to the config file")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *calibratePath != "" {
		if err := runCalibration(cfg, *calibratePath, *applyCalibration); err != nil {
			slog.Error("calibration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	snap := cfg.Snapshot()

	// Check FFmpeg availability; without it neither capture nor dumps work.
	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - control loop not started",
			"configured_path", snap.FFmpegPath)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	loop, journal, err := buildLoop(cfg, &snap, ffmpegPath)
	if err != nil {
		slog.Error("failed to assemble control loop", "error", err)
		os.Exit(1)
	}

	if ffmpegAvailable {
		slog.Info("starting control loop",
			"source", snap.Source,
			"mixer_control", snap.MixerControl,
			"interval", snap.CycleInterval)
		if err := loop.Start(); err != nil {
			slog.Error("failed to start control loop", "error", err)
		}
	}

	srv := NewServer(cfg, loop, journal, ffmpegAvailable)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	loop.Stop()

	if journal != nil {
		if err := journal.Close(); err != nil {
			slog.Error("error closing event journal", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// buildLoop assembles the control loop and its collaborators from config.
func buildLoop(cfg *config.Config, snap *config.Snapshot, ffmpegPath string) (*control.Loop, *events.Logger, error) {
	filter, err := dsp.NewBandPass(float64(snap.SampleRate), snap.LowCutHz, snap.HighCutHz, snap.Order)
	if err != nil {
		return nil, nil, util.WrapError("design band-pass filter", err)
	}

	// Without FFmpeg the loop is assembled but never started; the web
	// interface still comes up so the problem can be diagnosed.
	var source control.AudioSource = audio.UnavailableSource{}
	if ffmpegPath != "" {
		rtsp, err := audio.NewRTSPSource(ffmpegPath, snap.Source, snap.SampleRate,
			time.Duration(snap.CaptureSeconds)*time.Second)
		if err != nil {
			return nil, nil, util.WrapError("create audio source", err)
		}
		source = rtsp
	}

	controller, err := control.NewController(control.GainConfig{
		MinDB:     snap.MinGainDB,
		MaxDB:     snap.MaxGainDB,
		StepDB:    snap.GainStepDB,
		NoiseHigh: snap.NoiseHigh,
		NoiseLow:  snap.NoiseLow,
	})
	if err != nil {
		return nil, nil, util.WrapError("create gain controller", err)
	}

	watchdog := control.NewWatchdog(snap.SilenceThreshold, snap.SilenceLimit)
	mixer := alsa.NewMixer(snap.MixerControl)
	runner := recovery.NewRunner(snap.RecoveryCommand)

	journalPath := filepath.Join(filepath.Dir(cfg.Path()), "autogain-events.jsonl")
	journal, err := events.NewLogger(journalPath)
	if err != nil {
		slog.Warn("event journal disabled", "path", journalPath, "error", err)
		journal = nil
	}

	notifier := notify.NewSilenceNotifier(cfg)
	dumper := dump.NewDumper(ffmpegPath, dump.DefaultOutputDir(), snap.SampleRate)
	monitor := NewLoopMonitor(cfg, journal, notifier, dumper, snap.SilenceLimit)

	loop := control.NewLoop(source, filter, controller, watchdog, mixer, runner, monitor, snap.CycleInterval)
	return loop, journal, nil
}

// runCalibration derives thresholds and gain bounds for the microphone
// described in profilePath and optionally persists them.
func runCalibration(cfg *config.Config, profilePath string, apply bool) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return util.WrapError("read microphone profile", err)
	}

	var mic calibration.Profile
	if err := json.Unmarshal(data, &mic); err != nil {
		return util.WrapError("parse microphone profile", err)
	}

	snap := cfg.Snapshot()
	derived := calibration.Transform(snap.Reference, cfg.OperatingProfile(), mic)

	slog.Info("derived operating profile",
		"noise_high", derived.Thresholds.NoiseHigh,
		"noise_low", derived.Thresholds.NoiseLow,
		"min_gain_db", derived.MinGainDB,
		"max_gain_db", derived.MaxGainDB)

	if !apply {
		slog.Info("dry run, config unchanged (use -apply to persist)")
		return nil
	}

	if err := cfg.ApplyOperatingProfile(derived); err != nil {
		return util.WrapError("persist operating profile", err)
	}
	slog.Info("operating profile saved", "path", cfg.Path())
	return nil
}
