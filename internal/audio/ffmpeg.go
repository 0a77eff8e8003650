package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// FFmpeg decodes arbitrary audio containers to mono PCM and probes
// durations through the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
	runner      commandRunner
}

// NewFFmpeg constructs the production decoder for the given output rate.
func NewFFmpeg(ffmpegPath, ffprobePath string, sampleRate int) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		sampleRate:  sampleRate,
		runner:      &execRunner{},
	}
}

// NewFFmpegForTests constructs a decoder with an injectable runner.
func NewFFmpegForTests(ffmpegPath, ffprobePath string, sampleRate int, runner commandRunner) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		sampleRate:  sampleRate,
		runner:      runner,
	}
}

// Decode converts the audio file at path into a mono clip at the
// configured sample rate, whatever the source container or codec.
func (f *FFmpeg) Decode(ctx context.Context, path string) (Clip, error) {
	args := buildDecodeArgs(path, f.sampleRate)
	result, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	if err != nil {
		return Clip{}, fmt.Errorf("ffmpeg decode %s (exit=%d): %w", path, result.ExitCode, err)
	}

	return Clip{SampleRate: f.sampleRate, Samples: DecodePCM16(result.Stdout)}, nil
}

// Probe returns the duration of the audio file at path in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	result, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s (exit=%d): %w", path, result.ExitCode, err)
	}

	raw := strings.TrimSpace(string(result.Stdout))
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unparseable duration %q", path, raw)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("ffprobe %s: non-positive duration %v", path, duration)
	}
	return duration, nil
}

// buildDecodeArgs builds CLI args for raw signed 16-bit mono PCM output
// on stdout.
func buildDecodeArgs(inputPath string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-",
	}
}
