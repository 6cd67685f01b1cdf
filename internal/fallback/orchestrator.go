// Package fallback drives the multi-strategy transcription state machine:
// Validate, an ordered strategy chain, and a segment-splitting escape valve
// for tensor-shape failures.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/callops/call-transcriber/internal/audio"
	"github.com/callops/call-transcriber/internal/ffmpeg"
	"github.com/callops/call-transcriber/pkg/transcriber"
)

// ErrAllStrategiesFailed terminates the chain without a transcript.
var ErrAllStrategiesFailed = errors.New("all transcription strategies failed")

// Normalizer is the slice of the transcoder wrapper the orchestrator uses.
type Normalizer interface {
	Convert(ctx context.Context, preset ffmpeg.Preset, input, output string) error
	Normalize(ctx context.Context, input, output string) (ffmpeg.Preset, error)
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
}

// Transcript is the accepted output of the fallback chain.
type Transcript struct {
	Text     string
	Segments []transcriber.Segment
	// Strategy names the chain entry (or "segment_split") that produced it.
	Strategy string
}

// Config tunes the orchestrator.
type Config struct {
	Language string
	// WorkDir holds intermediate WAVs; defaults to os.TempDir().
	WorkDir string
	// WindowLength is the segment-split window size.
	WindowLength time.Duration
	// MinWindow discards trailing windows shorter than this.
	MinWindow time.Duration
	// SilenceRMS discards windows whose energy is below this.
	SilenceRMS float64
}

// Orchestrator owns the per-call fallback chain. A single orchestrator is
// shared by all workers; per-call state lives on the stack, and attempts
// within one call are strictly sequential.
type Orchestrator struct {
	normalizer Normalizer
	engine     transcriber.Transcriber
	language   string
	workDir    string
	windowLen  time.Duration
	minWindow  time.Duration
	silenceRMS float64
}

// New creates an orchestrator.
func New(normalizer Normalizer, engine transcriber.Transcriber, cfg Config) *Orchestrator {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = 30 * time.Second
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = time.Second
	}
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = 0.004
	}
	return &Orchestrator{
		normalizer: normalizer,
		engine:     engine,
		language:   cfg.Language,
		workDir:    cfg.WorkDir,
		windowLen:  cfg.WindowLength,
		minWindow:  cfg.MinWindow,
		silenceRMS: cfg.SilenceRMS,
	}
}

// Transcribe runs the state machine for one audio file.
func (o *Orchestrator) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if err := o.validate(ctx, audioPath); err != nil {
		return nil, err
	}

	log := logrus.WithField("audio", audioPath)

	for _, strat := range o.strategies() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prepared, cleanup, err := strat.prepare(ctx, audioPath)
		if err != nil {
			log.WithError(err).WithField("strategy", strat.name).Warn("Strategy preparation failed, trying next")
			continue
		}

		result, err := o.runPrepared(ctx, strat, prepared)
		if err != nil {
			if transcriber.IsShapeError(err) {
				// Degenerate input trips tensor-shape checks deep in the
				// model; retrying the same bytes cannot succeed. Splitting
				// into bounded windows sidesteps the failure class. The WAV
				// the failed strategy just produced is handed on so the
				// split does not transcode the call a second time.
				log.WithError(err).WithField("strategy", strat.name).Info("Shape error, escalating to segment split")
				reuse := ""
				if strat.normalizedWAV {
					reuse = prepared
				}
				t, splitErr := o.segmentSplit(ctx, audioPath, reuse)
				cleanup()
				return t, splitErr
			}
			cleanup()
			log.WithError(err).WithField("strategy", strat.name).Warn("Strategy failed, trying next")
			continue
		}
		cleanup()
		if result.Text == "" {
			log.WithField("strategy", strat.name).Warn("Strategy produced empty text, trying next")
			continue
		}

		log.WithFields(logrus.Fields{
			"strategy": strat.name,
			"chars":    len(result.Text),
			"segments": len(result.Segments),
		}).Info("Transcription succeeded")
		return &Transcript{Text: result.Text, Segments: result.Segments, Strategy: strat.name}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrAllStrategiesFailed, audioPath)
}

// runPrepared feeds an already-prepared input through one parameter profile.
func (o *Orchestrator) runPrepared(ctx context.Context, strat strategy, prepared string) (*transcriber.Result, error) {
	if strat.rawSamples {
		wf, err := audio.DecodeFile(prepared)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: decode: %w", strat.name, err)
		}
		mono := audio.Canonicalize(wf)
		return o.engine.TranscribeSamples(ctx, audio.ToFloat32(mono.Samples), strat.opts)
	}
	return o.engine.TranscribeFile(ctx, prepared, strat.opts)
}
