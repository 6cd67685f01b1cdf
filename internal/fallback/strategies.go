package fallback

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/callops/call-transcriber/internal/audio"
	"github.com/callops/call-transcriber/internal/ffmpeg"
	"github.com/callops/call-transcriber/pkg/transcriber"
)

// strategy pairs one audio-preparation path with one engine parameter
// profile. The chain is data: adding or reordering strategies is a list
// edit, not a new code path.
type strategy struct {
	name string
	// prepare produces the engine input file. cleanup always safe to call.
	prepare func(ctx context.Context, src string) (path string, cleanup func(), err error)
	opts    transcriber.Options
	// rawSamples routes the prepared WAV through TranscribeSamples,
	// bypassing the engine's file decoder.
	rawSamples bool
	// normalizedWAV marks prepare output as a decodable WAV the segment
	// split can reuse instead of transcoding the source again.
	normalizedWAV bool
}

// conservative decoding knobs shared by most strategies: deterministic
// output, minimal search.
func conservativeOpts(language string) transcriber.Options {
	return transcriber.Options{
		Language:    language,
		Temperature: 0,
		BeamSize:    1,
		BestOf:      1,
		Patience:    1.0,
	}
}

// strategies builds the fallback chain in trial order.
func (o *Orchestrator) strategies() []strategy {
	lang := o.language

	aggressive := conservativeOpts(lang)
	aggressive.InitialPrompt = transcriber.PunctuationPrompt
	aggressive.ConditionOnPreviousText = true
	aggressive.NoSpeechThreshold = 0.6
	aggressive.CompressionRatioThreshold = 2.4

	ultra := conservativeOpts(lang)
	ultra.WithoutTimestamps = true

	return []strategy{
		{
			name:          "aggressive",
			prepare:       o.convertWith(ffmpeg.PresetAggressive),
			opts:          aggressive,
			normalizedWAV: true,
		},
		{
			name:          "basic",
			prepare:       o.convertWith(ffmpeg.PresetBasic),
			opts:          transcriber.Options{Language: lang},
			normalizedWAV: true,
		},
		{
			name:          "resample",
			prepare:       o.renormalize,
			opts:          transcriber.Options{Language: lang},
			normalizedWAV: true,
		},
		{
			name:          "ultra_basic",
			prepare:       o.convertWith(ffmpeg.PresetUltraBasic),
			opts:          ultra,
			normalizedWAV: true,
		},
		{
			// passthrough hands the source file straight to the engine, so
			// there is no WAV for the segment split to reuse
			name:    "direct",
			prepare: passthrough,
			opts:    conservativeOpts(lang),
		},
		{
			name:          "safe_mode",
			prepare:       o.convertWith(ffmpeg.PresetSafe),
			opts:          conservativeOpts(lang),
			rawSamples:    true,
			normalizedWAV: true,
		},
	}
}

func (o *Orchestrator) convertWith(preset ffmpeg.Preset) func(context.Context, string) (string, func(), error) {
	return func(ctx context.Context, src string) (string, func(), error) {
		out := o.tempWAV()
		if err := o.normalizer.Convert(ctx, preset, src, out); err != nil {
			os.Remove(out)
			return "", func() {}, err
		}
		return out, func() { os.Remove(out) }, nil
	}
}

// renormalize is the library-based path, independent of the external
// transcoder.
func (o *Orchestrator) renormalize(_ context.Context, src string) (string, func(), error) {
	out := o.tempWAV()
	if err := audio.Renormalize(src, out); err != nil {
		os.Remove(out)
		return "", func() {}, err
	}
	return out, func() { os.Remove(out) }, nil
}

func passthrough(_ context.Context, src string) (string, func(), error) {
	return src, func() {}, nil
}

func (o *Orchestrator) tempWAV() string {
	return filepath.Join(o.workDir, "calltx_"+uuid.New().String()+".wav")
}
