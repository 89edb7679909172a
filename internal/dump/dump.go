// Package dump encodes the raw audio of a confirmed no-signal episode to MP3
// so the on-call engineer can verify what the capture chain actually delivered.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/audio"
)

const (
	// MP3 encoding settings.
	mp3Bitrate    = "64k"
	encodeTimeout = 30 * time.Second

	// Output subdirectory name (inside system temp dir).
	outputDirName = "autogain-silence-dumps"
)

// DefaultOutputDir returns the default directory for silence dumps.
func DefaultOutputDir() string {
	return filepath.Join(os.TempDir(), outputDirName)
}

// Result contains the outcome of encoding a silence dump.
type Result struct {
	// FilePath is the full path to the MP3 file.
	FilePath string
	// Filename is the base name of the MP3 file.
	Filename string
	// FileSize is the MP3 size in bytes.
	FileSize int64
	// CapturedAt is when the silent audio was captured.
	CapturedAt time.Time
	// Error is non-nil if encoding failed.
	Error error
}

// Dumper encodes raw capture buffers to MP3 evidence files.
type Dumper struct {
	ffmpegPath string
	outputDir  string
	sampleRate int
}

// NewDumper creates a dumper writing to outputDir.
func NewDumper(ffmpegPath, outputDir string, sampleRate int) *Dumper {
	return &Dumper{
		ffmpegPath: ffmpegPath,
		outputDir:  outputDir,
		sampleRate: sampleRate,
	}
}

// Encode writes the given samples to an MP3 file named after the capture time.
// It blocks until FFmpeg finishes; callers run it off the control loop.
func (d *Dumper) Encode(samples []float64, capturedAt time.Time) *Result {
	result := &Result{CapturedAt: capturedAt}

	if d.ffmpegPath == "" {
		result.Error = errors.New("ffmpeg path not configured")
		return result
	}
	if len(samples) == 0 {
		result.Error = errors.New("no audio to encode")
		return result
	}

	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		result.Error = fmt.Errorf("create output dir: %w", err)
		return result
	}

	// Filename: 2024-01-15_14-32-05.mp3 (local time)
	result.Filename = capturedAt.Local().Format("2006-01-02_15-04-05") + ".mp3"
	result.FilePath = filepath.Join(d.outputDir, result.Filename)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		encodeTimeout,
		errors.New("ffmpeg encode timeout"),
	)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpegPath, d.encodeArgs(result.FilePath)...)
	cmd.Stdin = bytes.NewReader(audio.EncodeS16LE(samples))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		result.Error = fmt.Errorf("ffmpeg encoding failed: %w, stderr: %s", err, stderr.String())
		return result
	}

	info, err := os.Stat(result.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("stat output file: %w", err)
		return result
	}
	result.FileSize = info.Size()

	slog.Info("silence dump encoded", "file", result.Filename, "size", result.FileSize)

	return result
}

// encodeArgs builds the FFmpeg command line for raw mono PCM to MP3.
func (d *Dumper) encodeArgs(outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", d.sampleRate),
		"-ac", "1",
		"-i", "-",
		"-c:a", "libmp3lame",
		"-b:a", mp3Bitrate,
		"-f", "mp3",
		"-y",
		outputPath,
	}
}
