// Package transcriber wraps the speech-to-text engine behind a small
// interface and classifies its failures.
package transcriber

import "context"

// Segment is one timed piece of transcribed speech. Segments arrive
// ordered and non-overlapping from the engine.
type Segment struct {
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Text  string  `json:"text"`
}

// Result is the engine output for one transcription.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Options selects the engine parameter profile for one transcription.
// The zero value plus Language is the minimal profile.
type Options struct {
	// Language hint (e.g. "es"); empty lets the engine detect.
	Language string

	// Deterministic decoding knobs. Temperature 0 with BeamSize/BestOf 1
	// keeps output reproducible.
	Temperature float64
	BeamSize    int
	BestOf      int
	Patience    float64

	// InitialPrompt seeds style and punctuation.
	InitialPrompt string

	// ConditionOnPreviousText carries context across internal windows.
	ConditionOnPreviousText bool

	// WithoutTimestamps disables segment timing (ultra-conservative mode).
	WithoutTimestamps bool

	// Detection thresholds; zero means engine default.
	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
}

// Transcriber converts audio into text. Implementations must be safe for
// concurrent use by multiple workers.
type Transcriber interface {
	// TranscribeFile transcribes an audio file on disk.
	TranscribeFile(ctx context.Context, path string, opts Options) (*Result, error)

	// TranscribeSamples transcribes raw mono 16kHz samples in [-1, 1],
	// bypassing file-based decoding entirely.
	TranscribeSamples(ctx context.Context, samples []float32, opts Options) (*Result, error)

	// IsReady reports whether the engine can accept work.
	IsReady() bool

	// Close releases engine resources.
	Close() error
}
