package dump

import (
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeArgsFormat(t *testing.T) {
	d := NewDumper("/usr/bin/ffmpeg", t.TempDir(), 48000)
	args := d.encodeArgs("/tmp/out.mp3")

	want := map[string]string{
		"-f":   "s16le",
		"-ar":  "48000",
		"-ac":  "1",
		"-c:a": "libmp3lame",
		"-b:a": "64k",
	}
	got := map[string]string{}
	for i := 0; i < len(args)-1; i++ {
		if _, ok := want[args[i]]; ok && got[args[i]] == "" {
			got[args[i]] = args[i+1]
		}
	}
	for flag, val := range want {
		if got[flag] != val {
			t.Errorf("arg %s = %q, want %q", flag, got[flag], val)
		}
	}
	if args[len(args)-1] != "/tmp/out.mp3" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestEncodeRejectsMissingFFmpeg(t *testing.T) {
	d := NewDumper("", t.TempDir(), 48000)
	result := d.Encode([]float64{0.1, 0.2}, time.Now())
	if result.Error == nil {
		t.Error("expected error without ffmpeg path")
	}
}

func TestEncodeRejectsEmptyBuffer(t *testing.T) {
	d := NewDumper("/usr/bin/ffmpeg", t.TempDir(), 48000)
	result := d.Encode(nil, time.Now())
	if result.Error == nil {
		t.Error("expected error for empty buffer")
	}
}

func TestS3Key(t *testing.T) {
	at := time.Date(2026, 3, 7, 14, 32, 5, 0, time.UTC)
	r := &Result{Filename: "2026-03-07_14-32-05.mp3", CapturedAt: at}
	if got, want := S3Key(r), "silence-dumps/2026/03/2026-03-07_14-32-05.mp3"; got != want {
		t.Errorf("S3Key() = %q, want %q", got, want)
	}
}

func TestS3ConfigIsConfigured(t *testing.T) {
	cfg := &S3Config{}
	if cfg.IsConfigured() {
		t.Error("empty config should not be configured")
	}
	cfg = &S3Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}
	if !cfg.IsConfigured() {
		t.Error("complete config should be configured")
	}
}

func TestDefaultOutputDir(t *testing.T) {
	dir := DefaultOutputDir()
	if filepath.Base(dir) != "autogain-silence-dumps" {
		t.Errorf("DefaultOutputDir() = %q", dir)
	}
}
