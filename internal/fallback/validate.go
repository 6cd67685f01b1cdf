package fallback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ValidationError fails a call before any transcription strategy runs.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid audio %s: %s", e.Path, e.Reason)
}

const (
	minUsableDuration = 100 * time.Millisecond
	longCallThreshold = time.Hour
	smallFileBytes    = 1024
)

var knownExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true,
	".flac": true, ".ogg": true, ".wma": true,
}

// validate rejects unusable input outright and logs advisory warnings for
// suspicious-but-processable files. The duration probe is best effort: a
// probe failure is never fatal on its own.
func (o *Orchestrator) validate(ctx context.Context, path string) error {
	log := logrus.WithField("audio", path)

	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Path: path, Reason: "file not found"}
	}
	if info.Size() == 0 {
		return &ValidationError{Path: path, Reason: "empty file"}
	}
	if info.Size() < smallFileBytes {
		log.WithField("bytes", info.Size()).Warn("Audio file suspiciously small")
	}

	if ext := strings.ToLower(filepath.Ext(path)); !knownExtensions[ext] {
		log.WithField("ext", ext).Warn("Unrecognized audio extension")
	}

	probe, err := o.normalizer.Probe(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Duration probe failed, continuing without validation")
		return nil
	}

	if probe.Duration > 0 && probe.Duration < minUsableDuration {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("duration %s below usable minimum", probe.Duration)}
	}
	if probe.Duration > longCallThreshold {
		log.WithField("duration", probe.Duration).Warn("Unusually long call, proceeding")
	}

	log.WithFields(logrus.Fields{
		"duration":    probe.Duration,
		"sample_rate": probe.SampleRate,
		"channels":    probe.Channels,
	}).Debug("Audio validated")
	return nil
}
