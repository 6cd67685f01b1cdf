package transcriber

import (
	"context"
	"fmt"
	"sync"
)

// MockTranscriber is a scriptable engine for tests and local runs
// without a Python environment. Responses are consumed per call site in
// order; when the script is exhausted, a canned success is returned.
type MockTranscriber struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     int
}

// MockResponse is one scripted engine outcome.
type MockResponse struct {
	Result *Result
	Err    error
}

// NewMockTranscriber creates a mock with an optional response script.
func NewMockTranscriber(responses ...MockResponse) *MockTranscriber {
	return &MockTranscriber{responses: responses}
}

// Calls returns how many transcriptions have been requested.
func (mt *MockTranscriber) Calls() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.calls
}

func (mt *MockTranscriber) next(size int) (*Result, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.calls++
	if len(mt.responses) > 0 {
		resp := mt.responses[0]
		mt.responses = mt.responses[1:]
		return resp.Result, resp.Err
	}
	return &Result{Text: fmt.Sprintf("[mock transcript: %d bytes of audio]", size)}, nil
}

func (mt *MockTranscriber) TranscribeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mt.next(len(path))
}

func (mt *MockTranscriber) TranscribeSamples(ctx context.Context, samples []float32, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mt.next(len(samples) * 4)
}

func (mt *MockTranscriber) IsReady() bool { return true }

func (mt *MockTranscriber) Close() error { return nil }
