// Package pipeline runs one call through acquisition, transcription,
// formatting and persistence. Every failure is captured in the
// per-call result; nothing escapes to the batch layer.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/callops/call-transcriber/internal/callstore"
	"github.com/callops/call-transcriber/internal/fallback"
	"github.com/callops/call-transcriber/internal/format"
	"github.com/callops/call-transcriber/internal/retain"
)

// Fetcher downloads call audio to a local path.
type Fetcher interface {
	Resolve(ref string) string
	Fetch(ctx context.Context, ref, dest string) error
}

// Engine turns a local audio file into a transcript.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (*fallback.Transcript, error)
}

// Result is the outcome of processing one call.
type Result struct {
	CallID         int64         `json:"call_id"`
	UserType       string        `json:"user_type"`
	AudioPath      string        `json:"audio_path,omitempty"`
	TranscriptPath string        `json:"transcript_path,omitempty"`
	Transcript     string        `json:"-"`
	Strategy       string        `json:"strategy,omitempty"`
	Skipped        bool          `json:"skipped"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// sidecar is the JSON metadata written next to each transcript.
type sidecar struct {
	CallID          int64     `json:"call_id"`
	UserType        string    `json:"user_type"`
	CallTimestamp   time.Time `json:"call_timestamp"`
	SourceURL       string    `json:"source_url"`
	AudioPath       string    `json:"audio_path"`
	TranscriptPath  string    `json:"transcript_path"`
	ProcessedAt     time.Time `json:"processed_at"`
	Strategy        string    `json:"strategy"`
	TranscriptChars int       `json:"transcript_chars"`
}

// Processor owns the per-call flow.
type Processor struct {
	fetcher Fetcher
	engine  Engine
	cleaner *retain.Cleaner
	layout  Layout
}

// New assembles a processor.
func New(fetcher Fetcher, engine Engine, cleaner *retain.Cleaner, layout Layout) *Processor {
	return &Processor{fetcher: fetcher, engine: engine, cleaner: cleaner, layout: layout}
}

// Process runs one call end to end. An existing transcript short
// circuits: its contents are returned without downloading anything.
// Retention runs exactly once whether the call succeeds or fails.
func (p *Processor) Process(ctx context.Context, call callstore.CallRecord) Result {
	started := time.Now()
	paths := p.layout.For(call)

	res := Result{CallID: call.ID, UserType: call.UserType}
	defer func() {
		p.cleaner.Cleanup(call.ID, paths.AudioPath, paths.TranscriptPath)
	}()

	log := logrus.WithFields(logrus.Fields{
		"call_id": call.ID,
		"source":  call.AudioPath,
	})

	if existing, err := os.ReadFile(paths.TranscriptPath); err == nil {
		log.WithField("path", paths.TranscriptPath).Info("Transcript already exists, skipping")
		res.Success = true
		res.Skipped = true
		res.TranscriptPath = paths.TranscriptPath
		res.Transcript = string(existing)
		res.Elapsed = time.Since(started)
		return res
	}

	if err := p.fetcher.Fetch(ctx, call.AudioPath, paths.AudioPath); err != nil {
		return res.fail(started, fmt.Errorf("download: %w", err))
	}
	res.AudioPath = paths.AudioPath

	transcript, err := p.engine.Transcribe(ctx, paths.AudioPath)
	if err != nil {
		return res.fail(started, fmt.Errorf("transcription: %w", err))
	}
	res.Strategy = transcript.Strategy

	rendered := format.Render(transcript.Text, transcript.Segments)

	if err := writeFileAtomic(paths.TranscriptPath, []byte(rendered)); err != nil {
		return res.fail(started, fmt.Errorf("persist transcript: %w", err))
	}
	res.TranscriptPath = paths.TranscriptPath
	res.Transcript = rendered

	p.writeSidecar(log, call, paths, transcript.Strategy, len(rendered))

	log.WithFields(logrus.Fields{
		"strategy": transcript.Strategy,
		"chars":    len(rendered),
		"elapsed":  time.Since(started).Round(time.Millisecond),
	}).Info("Call transcribed")

	res.Success = true
	res.Elapsed = time.Since(started)
	return res
}

func (r Result) fail(started time.Time, err error) Result {
	logrus.WithField("call_id", r.CallID).WithError(err).Error("Call processing failed")
	r.Error = err.Error()
	r.Elapsed = time.Since(started)
	return r
}

// writeSidecar persists call metadata next to the transcript. Sidecar
// failures are logged only, the transcript already made it to disk.
func (p *Processor) writeSidecar(log *logrus.Entry, call callstore.CallRecord, paths CallPaths, strategy string, chars int) {
	meta := sidecar{
		CallID:          call.ID,
		UserType:        call.UserType,
		CallTimestamp:   call.FechaLlamada,
		SourceURL:       p.fetcher.Resolve(call.AudioPath),
		AudioPath:       paths.AudioPath,
		TranscriptPath:  paths.TranscriptPath,
		ProcessedAt:     time.Now().UTC(),
		Strategy:        strategy,
		TranscriptChars: chars,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = writeFileAtomic(paths.SidecarPath, data)
	}
	if err != nil {
		log.WithError(err).Warn("Could not write metadata sidecar")
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
