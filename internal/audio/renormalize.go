package audio

import (
	"fmt"
)

// Renormalize converts a decodable WAV input into the canonical
// mono/16kHz/PCM16 shape without involving the external transcoder.
// Inputs in other containers fail with ErrNotWAV and the fallback chain
// moves on.
func Renormalize(inputPath, outputPath string) error {
	wf, err := DecodeFile(inputPath)
	if err != nil {
		return fmt.Errorf("renormalize: %w", err)
	}
	canonical := Canonicalize(wf)
	if len(canonical.Samples) == 0 {
		return fmt.Errorf("renormalize: %s decoded to no samples", inputPath)
	}
	return EncodeFile(outputPath, canonical)
}

// Canonicalize downmixes to mono and resamples to the canonical rate.
func Canonicalize(wf *Waveform) *Waveform {
	mono := Downmix(wf)
	return Resample(mono, CanonicalSampleRate)
}

// Downmix averages interleaved channels into a single mono channel.
func Downmix(wf *Waveform) *Waveform {
	if wf.Channels <= 1 {
		return &Waveform{Samples: wf.Samples, SampleRate: wf.SampleRate, Channels: 1}
	}

	frames := len(wf.Samples) / wf.Channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < wf.Channels; c++ {
			sum += int(wf.Samples[i*wf.Channels+c])
		}
		mono[i] = int16(sum / wf.Channels)
	}
	return &Waveform{Samples: mono, SampleRate: wf.SampleRate, Channels: 1}
}

// Resample converts a mono waveform to targetRate using linear
// interpolation.
func Resample(wf *Waveform, targetRate int) *Waveform {
	if wf.SampleRate == targetRate || len(wf.Samples) == 0 {
		return &Waveform{Samples: wf.Samples, SampleRate: targetRate, Channels: 1}
	}

	ratio := float64(wf.SampleRate) / float64(targetRate)
	outLen := int(float64(len(wf.Samples)) / ratio)
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(wf.Samples)-1 {
			out[i] = wf.Samples[len(wf.Samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(wf.Samples[idx]), float64(wf.Samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return &Waveform{Samples: out, SampleRate: targetRate, Channels: 1}
}
