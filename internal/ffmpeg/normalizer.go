// Package ffmpeg shells out to the external transcoder to produce the
// canonical mono/16kHz/PCM16 waveform the engine expects.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAllPresetsFailed is returned when every preset in the cascade fails.
var ErrAllPresetsFailed = errors.New("all conversion presets failed")

// Preset identifies one transcoder invocation profile.
type Preset string

const (
	// PresetAggressive resamples with soxr and band-passes 80Hz-8kHz.
	// Best quality on clean input, most likely to choke on broken files.
	PresetAggressive Preset = "aggressive"
	// PresetBasic pins PCM/mono/16kHz with no filtering.
	PresetBasic Preset = "basic"
	// PresetUltraBasic only coerces sample rate and channel count.
	PresetUltraBasic Preset = "ultra_basic"
	// PresetSafe applies loudness normalization for the safe-mode strategy.
	PresetSafe Preset = "safe"
)

type presetSpec struct {
	args    []string
	timeout time.Duration
}

var presets = map[Preset]presetSpec{
	PresetAggressive: {
		args: []string{
			"-af", "aresample=resampler=soxr,volume=1.0,highpass=f=80,lowpass=f=8000",
			"-acodec", "pcm_s16le",
			"-ac", "1",
			"-ar", "16000",
			"-sample_fmt", "s16",
			"-f", "wav",
		},
		timeout: 60 * time.Second,
	},
	PresetBasic: {
		args:    []string{"-acodec", "pcm_s16le", "-ac", "1", "-ar", "16000"},
		timeout: 60 * time.Second,
	},
	PresetUltraBasic: {
		args:    []string{"-ar", "16000", "-ac", "1"},
		timeout: 120 * time.Second,
	},
	PresetSafe: {
		args: []string{
			"-af", "loudnorm",
			"-acodec", "pcm_s16le",
			"-ac", "1",
			"-ar", "16000",
		},
		timeout: 90 * time.Second,
	},
}

// cascade is the descending quality-vs-robustness order for Normalize.
var cascade = []Preset{PresetAggressive, PresetBasic, PresetUltraBasic}

// CommandRunner executes an external command. Injectable for tests.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Normalizer converts arbitrary input audio to canonical WAV.
type Normalizer struct {
	ffmpegBinary  string
	ffprobeBinary string
	commandRunner CommandRunner
}

// NewNormalizer creates a normalizer using binaries found in PATH.
func NewNormalizer() *Normalizer {
	return &Normalizer{ffmpegBinary: "ffmpeg", ffprobeBinary: "ffprobe"}
}

// WithBinaries overrides the transcoder binary names.
func (n *Normalizer) WithBinaries(ffmpeg, ffprobe string) *Normalizer {
	if ffmpeg != "" {
		n.ffmpegBinary = ffmpeg
	}
	if ffprobe != "" {
		n.ffprobeBinary = ffprobe
	}
	return n
}

// WithCommandRunner sets a custom command runner (for testing).
func (n *Normalizer) WithCommandRunner(runner CommandRunner) *Normalizer {
	n.commandRunner = runner
	return n
}

// Convert runs a single preset with its bounded timeout. Nonzero exit,
// timeout, or an empty output file are all conversion failures.
func (n *Normalizer) Convert(ctx context.Context, preset Preset, input, output string) error {
	spec, ok := presets[preset]
	if !ok {
		return fmt.Errorf("unknown preset %q", preset)
	}

	runCtx, cancel := context.WithTimeout(ctx, spec.timeout)
	defer cancel()

	args := append([]string{"-i", input}, spec.args...)
	args = append(args, "-y", output)

	logrus.WithFields(logrus.Fields{"preset": preset, "input": input}).Debug("Converting audio")

	if err := n.run(runCtx, n.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("convert (%s): %w", preset, err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("convert (%s): produced no output", preset)
	}
	return nil
}

// Normalize tries the preset cascade top-down, returning the preset that
// succeeded. Filtering improves transcription quality on clean input but
// can itself mis-decode pathological files, so failures fall through to
// progressively simpler presets.
func (n *Normalizer) Normalize(ctx context.Context, input, output string) (Preset, error) {
	for _, preset := range cascade {
		if err := n.Convert(ctx, preset, input, output); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"preset": preset,
				"input":  input,
			}).Warn("Conversion preset failed, trying next")
			continue
		}
		return preset, nil
	}
	return "", fmt.Errorf("%w: %s", ErrAllPresetsFailed, input)
}

func (n *Normalizer) run(ctx context.Context, name string, args ...string) error {
	if n.commandRunner != nil {
		return n.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(truncate(string(output), 200)))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
