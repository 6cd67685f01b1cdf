// Package audio provides the library-based waveform path: WAV decode and
// encode, renormalization to the canonical mono/16kHz/PCM16 shape, energy
// measurement, and fixed-window partitioning. It deliberately avoids the
// external transcoder so the fallback chain has an independent code path.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// CanonicalSampleRate is the rate the transcription engine expects.
const CanonicalSampleRate = 16000

var (
	// ErrNotWAV indicates the input is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("not a WAV file")
	// ErrUnsupportedFormat indicates a WAV encoding other than PCM16.
	ErrUnsupportedFormat = errors.New("unsupported WAV encoding")
)

// Waveform is decoded PCM16 audio.
type Waveform struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the waveform length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 || w.Channels == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate*w.Channels)
}

// DecodeFile reads and decodes a PCM16 WAV file.
func DecodeFile(path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return Decode(data)
}

// Decode parses a RIFF/WAVE byte stream containing 16-bit PCM.
func Decode(data []byte) (*Waveform, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}

	var (
		wf       Waveform
		sawFmt   bool
		pcmBytes []byte
	)

	// walk chunks; fmt must precede data
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			size = len(data) - body // tolerate truncated final chunk
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			wf.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			wf.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, format, bits)
			}
			sawFmt = true
		case "data":
			pcmBytes = data[body : body+size]
		}

		// chunks are word-aligned
		if size%2 == 1 {
			size++
		}
		offset = body + size
	}

	if !sawFmt || pcmBytes == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	if wf.Channels < 1 || wf.SampleRate < 1 {
		return nil, fmt.Errorf("%w: invalid header", ErrUnsupportedFormat)
	}

	wf.Samples = bytesToInt16(pcmBytes)
	return &wf, nil
}

// Encode writes the waveform as a canonical PCM16 WAV stream.
func Encode(w io.Writer, wf *Waveform) error {
	pcm := int16ToBytes(wf.Samples)

	var header bytes.Buffer
	header.WriteString("RIFF")
	_ = binary.Write(&header, binary.LittleEndian, uint32(36+len(pcm)))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	_ = binary.Write(&header, binary.LittleEndian, uint32(16))
	_ = binary.Write(&header, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&header, binary.LittleEndian, uint16(wf.Channels))
	_ = binary.Write(&header, binary.LittleEndian, uint32(wf.SampleRate))
	_ = binary.Write(&header, binary.LittleEndian, uint32(wf.SampleRate*wf.Channels*2)) // byte rate
	_ = binary.Write(&header, binary.LittleEndian, uint16(wf.Channels*2))               // block align
	_ = binary.Write(&header, binary.LittleEndian, uint16(16))                          // bits per sample
	header.WriteString("data")
	_ = binary.Write(&header, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// EncodeFile writes the waveform to path as PCM16 WAV.
func EncodeFile(path string, wf *Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := Encode(f, wf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}

func int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:i*2+2], uint16(s))
	}
	return data
}

// ToFloat32 converts PCM16 samples to the [-1, 1] float range the engine
// ingests for raw sample transcription.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
