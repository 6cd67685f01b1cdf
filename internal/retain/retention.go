// Package retain deletes per-call working files after processing.
// Every step is independently guarded by its own flag and failures are
// logged and swallowed so retention never fails a transcription.
package retain

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy selects which artifacts are removed once a call finishes.
type Policy struct {
	// Enabled gates all retention work.
	Enabled bool
	// CleanAudio removes the call's audio working directory.
	CleanAudio bool
	// CleanTemp removes leftover scratch files carrying the call id.
	CleanTemp bool
	// KeepTranscripts false additionally removes the call's transcript
	// directory, metadata sidecar included.
	KeepTranscripts bool
	// Delay is waited before deleting anything, giving tail readers a
	// grace window.
	Delay time.Duration
}

// Cleaner applies a Policy, at most once per call id.
type Cleaner struct {
	policy Policy
	done   sync.Map // call id -> struct{}
}

// New builds a Cleaner for the given policy.
func New(policy Policy) *Cleaner {
	return &Cleaner{policy: policy}
}

// Cleanup removes the call's artifacts per the policy. Repeat calls for
// the same id are no-ops.
func (c *Cleaner) Cleanup(callID int64, audioPath, transcriptPath string) {
	if !c.policy.Enabled {
		return
	}
	if _, loaded := c.done.LoadOrStore(callID, struct{}{}); loaded {
		return
	}

	log := logrus.WithField("call_id", callID)

	if c.policy.Delay > 0 {
		time.Sleep(c.policy.Delay)
	}

	// the layout keeps one directory per call, so retention removes the
	// whole directory, not individual files
	if c.policy.CleanAudio && audioPath != "" {
		dir := filepath.Dir(audioPath)
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("Could not remove audio working directory")
		} else {
			log.WithField("path", dir).Debug("Audio working directory removed")
		}
	}

	if c.policy.CleanTemp {
		c.sweepTemp(log, callID)
	}

	if !c.policy.KeepTranscripts && transcriptPath != "" {
		dir := filepath.Dir(transcriptPath)
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("Could not remove transcript directory")
		} else {
			log.WithField("path", dir).Debug("Transcript directory removed")
		}
	}
}

// sweepTemp removes scratch files in the system temp dir that carry the
// call id in their name.
func (c *Cleaner) sweepTemp(log *logrus.Entry, callID int64) {
	pattern := filepath.Join(os.TempDir(), fmt.Sprintf("*call_%d*", callID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.WithError(err).Warn("Temp sweep failed")
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", m).Warn("Could not remove temp file")
		}
	}
	if len(matches) > 0 {
		log.WithField("files", len(matches)).Debug("Temp files swept")
	}
}
