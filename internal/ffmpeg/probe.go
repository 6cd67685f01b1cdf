package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult carries the container-level facts the validator needs.
type ProbeResult struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	FormatName string
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// Probe inspects path with ffprobe. A probe failure is advisory: callers
// warn and continue rather than failing the call.
func (n *Normalizer) Probe(ctx context.Context, path string) (ProbeResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, n.ffprobeBinary, //nolint:gosec
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(raw []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var result ProbeResult
	result.FormatName = out.Format.FormatName

	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("ffprobe duration %q: %w", out.Format.Duration, err)
		}
		result.Duration = time.Duration(secs * float64(time.Second))
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		result.Channels = stream.Channels
		if stream.SampleRate != "" {
			result.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		}
		break
	}

	if result.Duration == 0 && result.Channels == 0 {
		return result, errors.New("ffprobe found no audio metadata")
	}
	return result, nil
}
