package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/callops/call-transcriber/internal/pipeline"
)

func sampleSummary() *Summary {
	return &Summary{
		From:    "2026-03-01",
		To:      "2026-03-07",
		Started: time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC),
		Finished: time.Date(2026, 3, 8, 1, 10, 0, 0, time.UTC),
		Results: []pipeline.Result{
			{CallID: 1, UserType: "cliente", Success: true, Strategy: "aggressive"},
			{CallID: 2, UserType: "cliente", Success: false, Error: "download: connection refused"},
			{CallID: 3, UserType: "agente", Success: true, Skipped: true},
			{CallID: 4, UserType: "cliente", Success: false, Error: "transcription: all strategies failed"},
			{CallID: 5, UserType: "agente", Success: true, Strategy: "segment_split"},
		},
	}
}

func TestCounts(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, 3, s.Succeeded())
	assert.Equal(t, 2, s.Failed())
	assert.Equal(t, 1, s.Skipped())
}

func TestExitCodes(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, 1, s.ExitCode(), "mixed outcome is partial")

	allGood := &Summary{Results: []pipeline.Result{{CallID: 1, Success: true}}}
	assert.Equal(t, 0, allGood.ExitCode())

	allBad := &Summary{Results: []pipeline.Result{{CallID: 1, Error: "x"}, {CallID: 2, Error: "y"}}}
	assert.Equal(t, 2, allBad.ExitCode())

	empty := &Summary{}
	assert.Equal(t, 0, empty.ExitCode())
}

func TestRenderTableListsFailures(t *testing.T) {
	var buf bytes.Buffer
	sampleSummary().RenderTable(&buf)

	out := buf.String()
	assert.Contains(t, out, "Resumen de transcripción")
	assert.Contains(t, out, "Llamadas fallidas")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "60.0%")
}

func TestRenderTableOmitsFailureSectionWhenClean(t *testing.T) {
	var buf bytes.Buffer
	s := &Summary{Results: []pipeline.Result{{CallID: 1, Success: true}}}
	s.RenderTable(&buf)
	assert.NotContains(t, buf.String(), "Llamadas fallidas")
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	require.NoError(t, sampleSummary().WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2026-03-01", got.From)
	assert.Len(t, got.Results, 5)
	assert.Equal(t, int64(2), got.Results[1].CallID)
}

func TestWriteJSONLAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := sampleSummary()
	require.NoError(t, s.WriteJSONL(path))
	require.NoError(t, s.WriteJSONL(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r pipeline.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines++
	}
	assert.Equal(t, 10, lines, "two runs of five results each")
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, sampleSummary().WriteXLSX(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Resultados")
	require.NoError(t, err)
	require.Len(t, rows, 6, "header plus five results")
	assert.Equal(t, "Call ID", rows[0][0])
	assert.Equal(t, "1", rows[1][0])

	summary, err := f.GetRows("Resumen")
	require.NoError(t, err)
	assert.Equal(t, "Desde", summary[0][0])
}
