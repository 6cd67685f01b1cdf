package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WhisperTranscriber runs faster-whisper in a Python one-shot per
// transcription. Model weights are cached on disk by faster-whisper, so
// "load once" applies to the cache; the in-process availability probe runs
// exactly once under probeOnce.
//
// Engine access is limited by a semaphore sized at construction: on
// deployments where the inference backend is not reentrant (single GPU),
// size 1 serializes access; otherwise it bounds concurrent engine use.
type WhisperTranscriber struct {
	modelName   string
	language    string
	device      string // "auto", "cpu", "cuda"
	computeType string
	pythonPath  string
	timeout     time.Duration // 0 = unbounded
	sem         chan struct{}

	probeOnce sync.Once
	probeErr  error
}

// WhisperConfig configures the engine adapter.
type WhisperConfig struct {
	Model string
	// Language default for transcriptions that do not override it.
	Language string
	// Timeout bounds a single transcription; 0 leaves it unbounded.
	Timeout time.Duration
	// MaxConcurrent limits simultaneous engine invocations; <=0 means 1.
	MaxConcurrent int
}

// NewWhisperTranscriber creates the engine adapter and verifies the
// Python runtime once.
func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	pythonPath, err := exec.LookPath("python3")
	if err != nil {
		pythonPath, err = exec.LookPath("python")
		if err != nil {
			return nil, fmt.Errorf("python executable not found in PATH: %w", err)
		}
	}

	device := os.Getenv("FASTER_WHISPER_DEVICE")
	if device == "" {
		device = "auto"
	}
	computeType := os.Getenv("FASTER_WHISPER_COMPUTE_TYPE")
	if computeType == "" {
		computeType = "int8"
	}

	wt := &WhisperTranscriber{
		modelName:   cfg.Model,
		language:    cfg.Language,
		device:      device,
		computeType: computeType,
		pythonPath:  pythonPath,
		timeout:     cfg.Timeout,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
	}

	logrus.WithFields(logrus.Fields{
		"python":         pythonPath,
		"model":          cfg.Model,
		"device":         device,
		"compute_type":   computeType,
		"max_concurrent": cfg.MaxConcurrent,
	}).Info("Whisper transcriber initialized")

	return wt, nil
}

// IsReady probes the Python environment exactly once.
func (wt *WhisperTranscriber) IsReady() bool {
	wt.probeOnce.Do(func() {
		cmd := exec.Command(wt.pythonPath, "-c", "import faster_whisper") //nolint:gosec
		if err := cmd.Run(); err != nil {
			wt.probeErr = fmt.Errorf("faster-whisper not installed: %w", err)
			logrus.WithError(wt.probeErr).Error("Whisper engine unavailable")
		}
	})
	return wt.probeErr == nil
}

// Close releases engine resources. The one-shot model holds nothing open.
func (wt *WhisperTranscriber) Close() error { return nil }

// TranscribeFile transcribes an audio file on disk.
func (wt *WhisperTranscriber) TranscribeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	script := wt.script(fileIngest, opts)
	return wt.invoke(ctx, script, nil, []string{path})
}

// TranscribeSamples transcribes raw mono 16kHz float32 samples piped over
// stdin, bypassing the engine's file decoder.
func (wt *WhisperTranscriber) TranscribeSamples(ctx context.Context, samples []float32, opts Options) (*Result, error) {
	script := wt.script(stdinIngest, opts)
	return wt.invoke(ctx, script, float32LE(samples), nil)
}

// engineResponse is the JSON contract with the Python one-shot.
type engineResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Error    string    `json:"error"`
}

func (wt *WhisperTranscriber) invoke(ctx context.Context, script string, stdin []byte, extraArgs []string) (*Result, error) {
	select {
	case wt.sem <- struct{}{}:
		defer func() { <-wt.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if !wt.IsReady() {
		return nil, wt.probeErr
	}

	if wt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wt.timeout)
		defer cancel()
	}

	args := append([]string{"-c", script}, extraArgs...)
	cmd := exec.CommandContext(ctx, wt.pythonPath, args...) //nolint:gosec
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	start := time.Now()
	runErr := cmd.Run()

	var response engineResponse
	if jsonErr := json.Unmarshal(outBuf.Bytes(), &response); jsonErr != nil {
		if runErr != nil {
			return nil, Classify(fmt.Errorf("engine process failed: %w: %s", runErr, strings.TrimSpace(errBuf.String())))
		}
		return nil, Classify(fmt.Errorf("engine produced unparseable output: %w", jsonErr))
	}
	if response.Error != "" {
		return nil, Classify(fmt.Errorf("%s", response.Error))
	}
	if runErr != nil {
		return nil, Classify(fmt.Errorf("engine process failed: %w", runErr))
	}

	logrus.WithFields(logrus.Fields{
		"model":    wt.modelName,
		"chars":    len(response.Text),
		"segments": len(response.Segments),
		"took":     time.Since(start).Round(time.Millisecond),
	}).Debug("Transcription complete")

	return &Result{Text: strings.TrimSpace(response.Text), Segments: response.Segments}, nil
}

type ingestMode int

const (
	fileIngest ingestMode = iota
	stdinIngest
)

// script renders the Python one-shot for the given ingest mode and
// parameter profile.
func (wt *WhisperTranscriber) script(mode ingestMode, opts Options) string {
	language := opts.Language
	if language == "" {
		language = wt.language
	}

	var ingest string
	switch mode {
	case stdinIngest:
		ingest = `
import numpy as np
audio = np.frombuffer(sys.stdin.buffer.read(), dtype=np.float32)`
	default:
		ingest = `
audio = sys.argv[1]`
	}

	return fmt.Sprintf(`
import sys, json, warnings
warnings.filterwarnings("ignore")
try:
    from faster_whisper import WhisperModel
%s
    model = WhisperModel(%s, device=%s, compute_type=%s)
    segments, info = model.transcribe(
        audio,
        language=%s,
        temperature=%s,
        beam_size=%d,
        best_of=%d,
        patience=%s,
        initial_prompt=%s,
        condition_on_previous_text=%s,
        without_timestamps=%s,
        no_speech_threshold=%s,
        compression_ratio_threshold=%s,
    )
    out = {"text": "", "segments": []}
    parts = []
    for seg in segments:
        parts.append(seg.text)
        out["segments"].append({"start": seg.start, "end": seg.end, "text": seg.text.strip()})
    out["text"] = "".join(parts).strip()
    print(json.dumps(out))
except Exception as e:
    print(json.dumps({"text": "", "segments": [], "error": str(e)}))
    sys.exit(1)
`,
		indent(ingest),
		pyString(wt.modelName),
		pyString(wt.device),
		pyString(wt.computeType),
		pyOptString(language),
		pyFloat(opts.Temperature),
		orOne(opts.BeamSize),
		orOne(opts.BestOf),
		pyFloatDefault(opts.Patience, 1.0),
		pyOptString(opts.InitialPrompt),
		pyBool(opts.ConditionOnPreviousText),
		pyBool(opts.WithoutTimestamps),
		pyFloatDefault(opts.NoSpeechThreshold, 0.6),
		pyFloatDefault(opts.CompressionRatioThreshold, 2.4),
	)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimLeft(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "    " + line
		}
	}
	return strings.Join(lines, "\n")
}

func pyString(s string) string {
	return strconv.Quote(s)
}

func pyOptString(s string) string {
	if s == "" {
		return "None"
	}
	return strconv.Quote(s)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func pyFloatDefault(f, fallback float64) string {
	if f == 0 {
		f = fallback
	}
	return pyFloat(f)
}

func orOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// float32LE serializes samples as little-endian float32 for numpy.
func float32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(s))
	}
	return out
}
