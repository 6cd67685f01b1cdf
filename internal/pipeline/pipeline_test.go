package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callops/call-transcriber/internal/callstore"
	"github.com/callops/call-transcriber/internal/fallback"
	"github.com/callops/call-transcriber/internal/retain"
	"github.com/callops/call-transcriber/pkg/transcriber"
)

type fakeFetcher struct {
	fetches int
	err     error
}

func (f *fakeFetcher) Resolve(ref string) string { return "https://cdn.example.com/" + ref }

func (f *fakeFetcher) Fetch(_ context.Context, _ string, dest string) error {
	f.fetches++
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("audio-bytes"), 0o644)
}

type fakeEngine struct {
	transcript *fallback.Transcript
	err        error
	calls      int
}

func (e *fakeEngine) Transcribe(_ context.Context, _ string) (*fallback.Transcript, error) {
	e.calls++
	return e.transcript, e.err
}

func testCall() callstore.CallRecord {
	return callstore.CallRecord{
		ID:           42,
		FechaLlamada: time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC),
		UserType:     "cliente",
		AudioPath:    "recordings/2026/llamada_42.mp3",
		AgentID:      "a-17",
	}
}

func newTestProcessor(t *testing.T, fetcher Fetcher, engine Engine) (*Processor, Layout) {
	t.Helper()
	layout := Layout{AudioBase: t.TempDir(), TextBase: t.TempDir()}
	cleaner := retain.New(retain.Policy{Enabled: false})
	return New(fetcher, engine, cleaner, layout), layout
}

func TestLayoutPaths(t *testing.T) {
	layout := Layout{AudioBase: "/a", TextBase: "/t"}
	paths := layout.For(testCall())

	assert.Equal(t, "/a/2026/03/07/call_42/cliente_llamada_42.mp3", paths.AudioPath)
	assert.Equal(t, "/t/2026/03/07/call_42/cliente_llamada_42.txt", paths.TranscriptPath)
	assert.Equal(t, "/t/2026/03/07/call_42/cliente_llamada_42.json", paths.SidecarPath)
}

func TestLayoutTruncatesLongNames(t *testing.T) {
	call := testCall()
	call.AudioPath = "dir/" + strings.Repeat("ñ", 60) + ".wav"
	paths := Layout{AudioBase: "/a", TextBase: "/t"}.For(call)

	base := strings.TrimSuffix(strings.TrimPrefix(paths.AudioPath, "/a/2026/03/07/call_42/cliente_"), ".wav")
	assert.Equal(t, 40, len([]rune(base)))
}

func TestLayoutDefaultsExtensionAndUserType(t *testing.T) {
	call := testCall()
	call.AudioPath = "recordings/raw_audio"
	call.UserType = ""
	paths := Layout{AudioBase: "/a", TextBase: "/t"}.For(call)

	assert.True(t, strings.HasSuffix(paths.AudioPath, "unknown_raw_audio.wav"))
}

func TestProcessSuccess(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := &fakeEngine{transcript: &fallback.Transcript{
		Text:     "hola buenos días",
		Segments: []transcriber.Segment{{Start: 0, End: 3, Text: "hola buenos días"}},
		Strategy: "aggressive",
	}}
	p, layout := newTestProcessor(t, fetcher, engine)

	res := p.Process(context.Background(), testCall())

	require.Empty(t, res.Error)
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, "aggressive", res.Strategy)

	content, err := os.ReadFile(res.TranscriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "TRANSCRIPCIÓN DE LLAMADA CON TIMESTAMPS")

	sidecarData, err := os.ReadFile(layout.For(testCall()).SidecarPath)
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(sidecarData, &meta))
	assert.Equal(t, float64(42), meta["call_id"])
	assert.Equal(t, "https://cdn.example.com/recordings/2026/llamada_42.mp3", meta["source_url"])
	assert.Equal(t, "aggressive", meta["strategy"])
}

func TestProcessIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := &fakeEngine{transcript: &fallback.Transcript{Text: "hola", Strategy: "basic"}}
	p, _ := newTestProcessor(t, fetcher, engine)

	first := p.Process(context.Background(), testCall())
	require.True(t, first.Success)

	second := p.Process(context.Background(), testCall())
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Transcript, second.Transcript)
	assert.Equal(t, 1, fetcher.fetches, "skip path must not download")
	assert.Equal(t, 1, engine.calls, "skip path must not transcribe")
}

func TestProcessDownloadFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	engine := &fakeEngine{}
	p, _ := newTestProcessor(t, fetcher, engine)

	res := p.Process(context.Background(), testCall())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "download")
	assert.Equal(t, 0, engine.calls)
}

func TestProcessTranscriptionFailure(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := &fakeEngine{err: fallback.ErrAllStrategiesFailed}
	p, _ := newTestProcessor(t, fetcher, engine)

	res := p.Process(context.Background(), testCall())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "transcription")
	assert.Empty(t, res.TranscriptPath)
}

func TestRetentionRunsOnFailureToo(t *testing.T) {
	layout := Layout{AudioBase: t.TempDir(), TextBase: t.TempDir()}
	cleaner := retain.New(retain.Policy{Enabled: true, CleanAudio: true, KeepTranscripts: true})
	fetcher := &fakeFetcher{}
	engine := &fakeEngine{err: errors.New("engine down")}
	p := New(fetcher, engine, cleaner, layout)

	res := p.Process(context.Background(), testCall())

	require.False(t, res.Success)
	assert.NoFileExists(t, layout.For(testCall()).AudioPath, "downloaded audio removed by retention")
}
