package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// ErrNoFFmpeg is returned when no FFmpeg binary is available for capture.
var ErrNoFFmpeg = errors.New("ffmpeg binary not available")

// captureGrace is extra time allowed beyond the capture duration before the
// FFmpeg process is considered hung and killed.
const captureGrace = 10 * time.Second

// RTSPSource captures fixed-duration mono PCM buffers from an RTSP stream by
// running FFmpeg once per capture. It implements control.AudioSource.
type RTSPSource struct {
	ffmpegPath string
	url        string
	sampleRate int
	duration   time.Duration
}

// NewRTSPSource returns an RTSPSource reading from url at the given sample
// rate, capturing duration of audio per call.
func NewRTSPSource(ffmpegPath, url string, sampleRate int, duration time.Duration) (*RTSPSource, error) {
	if ffmpegPath == "" {
		return nil, ErrNoFFmpeg
	}
	return &RTSPSource{
		ffmpegPath: ffmpegPath,
		url:        url,
		sampleRate: sampleRate,
		duration:   duration,
	}, nil
}

// UnavailableSource stands in for an RTSPSource when no FFmpeg binary exists.
// Every capture fails with ErrNoFFmpeg.
type UnavailableSource struct{}

// Capture always fails.
func (UnavailableSource) Capture(context.Context) ([]float64, error) {
	return nil, ErrNoFFmpeg
}

// captureArgs builds the FFmpeg invocation: TCP transport for reliability,
// video discarded, S16LE mono PCM at the configured rate on stdout.
func (s *RTSPSource) captureArgs() []string {
	return []string{
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", s.url,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-ac", "1",
		"-t", fmt.Sprintf("%g", s.duration.Seconds()),
		"-",
	}
}

// Capture records one buffer of audio. It blocks for the full capture
// duration; this is the control loop's only suspension point. Any FFmpeg
// failure is returned as an error with the last stderr line attached.
func (s *RTSPSource) Capture(ctx context.Context) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.duration+captureGrace)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.ffmpegPath, s.captureArgs()...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := util.ExtractLastError(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg capture: %s", msg)
		}
		return nil, util.WrapError("run ffmpeg capture", err)
	}

	samples := DecodeS16LE(stdout.Bytes())
	if len(samples) == 0 {
		return nil, errors.New("ffmpeg produced no audio")
	}

	slog.Debug("captured audio", "samples", len(samples), "duration", s.duration)
	return samples, nil
}
