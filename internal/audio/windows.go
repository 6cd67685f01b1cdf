package audio

import (
	"math"
	"time"
)

// Window is one fixed-duration slice of a mono waveform, used by the
// segment-split fallback to transcribe bounded pieces independently.
type Window struct {
	Start   time.Duration
	End     time.Duration
	Samples []int16
}

// RMS returns the root-mean-square energy of samples normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NearSilent reports whether the window energy is below threshold.
func NearSilent(samples []int16, threshold float64) bool {
	return RMS(samples) < threshold
}

// Split partitions a mono waveform into consecutive windows of at most
// windowLen. The final window carries the remainder.
func Split(wf *Waveform, windowLen time.Duration) []Window {
	if len(wf.Samples) == 0 || wf.SampleRate == 0 {
		return nil
	}

	samplesPerWindow := int(windowLen.Seconds() * float64(wf.SampleRate))
	if samplesPerWindow <= 0 {
		return nil
	}

	var windows []Window
	for start := 0; start < len(wf.Samples); start += samplesPerWindow {
		end := start + samplesPerWindow
		if end > len(wf.Samples) {
			end = len(wf.Samples)
		}
		windows = append(windows, Window{
			Start:   sampleOffset(start, wf.SampleRate),
			End:     sampleOffset(end, wf.SampleRate),
			Samples: wf.Samples[start:end],
		})
	}
	return windows
}

func sampleOffset(sample, rate int) time.Duration {
	return time.Duration(float64(sample) / float64(rate) * float64(time.Second))
}
