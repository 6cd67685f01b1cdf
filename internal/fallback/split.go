package fallback

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/callops/call-transcriber/internal/audio"
	"github.com/callops/call-transcriber/pkg/transcriber"
)

// segmentSplit partitions the normalized waveform into fixed windows and
// transcribes each independently. prepared, when non-empty, is a WAV a
// failed strategy already produced and is reused in place of a fresh
// transcode. Windows below the minimum duration or near silence are
// discarded; a window that errors is skipped, never retried. Success
// requires at least one window with text.
func (o *Orchestrator) segmentSplit(ctx context.Context, audioPath, prepared string) (*Transcript, error) {
	log := logrus.WithField("audio", audioPath)

	var wf *audio.Waveform
	if prepared != "" {
		decoded, err := audio.DecodeFile(prepared)
		if err != nil {
			log.WithError(err).Warn("Prepared WAV unreadable, renormalizing source")
		} else {
			wf = decoded
		}
	}
	if wf == nil {
		normalized := o.tempWAV()
		defer os.Remove(normalized)
		if _, err := o.normalizer.Normalize(ctx, audioPath, normalized); err != nil {
			return nil, fmt.Errorf("segment split: %w", err)
		}
		decoded, err := audio.DecodeFile(normalized)
		if err != nil {
			return nil, fmt.Errorf("segment split: decode: %w", err)
		}
		wf = decoded
	}
	mono := audio.Canonicalize(wf)

	windows := audio.Split(mono, o.windowLen)
	log.WithField("windows", len(windows)).Info("Transcribing fixed windows independently")

	opts := conservativeOpts(o.language)
	opts.InitialPrompt = transcriber.WindowPrompt
	// each window stands alone, no cross-window conditioning
	opts.ConditionOnPreviousText = false

	var (
		texts    []string
		segments []transcriber.Segment
		skipped  int
	)

	for i, win := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		winLog := log.WithFields(logrus.Fields{"window": i, "start": win.Start, "end": win.End})

		if win.End-win.Start < o.minWindow {
			winLog.Debug("Window below minimum duration, skipping")
			skipped++
			continue
		}
		if audio.NearSilent(win.Samples, o.silenceRMS) {
			winLog.Debug("Window near silence, skipping")
			skipped++
			continue
		}

		result, err := o.engine.TranscribeSamples(ctx, audio.ToFloat32(win.Samples), opts)
		if err != nil {
			winLog.WithError(err).Warn("Window transcription failed, skipping")
			skipped++
			continue
		}

		text := strings.TrimSpace(result.Text)
		if text == "" {
			skipped++
			continue
		}

		texts = append(texts, text)
		segments = append(segments, transcriber.Segment{
			Start: win.Start.Seconds(),
			End:   win.End.Seconds(),
			Text:  text,
		})
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: segment split produced no text (%d windows skipped)", ErrAllStrategiesFailed, skipped)
	}

	log.WithFields(logrus.Fields{
		"windows_used":    len(texts),
		"windows_skipped": skipped,
	}).Info("Segment split succeeded")

	return &Transcript{
		Text:     strings.Join(texts, " "),
		Segments: segments,
		Strategy: "segment_split",
	}, nil
}
