// Package report summarizes a batch run: a console table, a JSON
// report, an always-on JSONL result log, and an optional XLSX export.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"github.com/callops/call-transcriber/internal/pipeline"
)

// Summary aggregates the per-call results of one run.
type Summary struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Results  []pipeline.Result `json:"results"`
}

// Succeeded counts successful calls, skipped ones included.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts calls that produced no transcript.
func (s *Summary) Failed() int { return len(s.Results) - s.Succeeded() }

// Skipped counts calls whose transcript already existed.
func (s *Summary) Skipped() int {
	n := 0
	for _, r := range s.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// ExitCode maps the run outcome to the process exit status: 0 when
// everything succeeded, 1 on partial failure, 2 when nothing did.
func (s *Summary) ExitCode() int {
	switch {
	case len(s.Results) == 0 || s.Failed() == 0:
		return 0
	case s.Succeeded() > 0:
		return 1
	default:
		return 2
	}
}

// RenderTable writes the console summary.
func (s *Summary) RenderTable(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Resumen de transcripción %s a %s", s.From, s.To)

	tw.AppendHeader(table.Row{"", "Llamadas"})
	tw.AppendRows([]table.Row{
		{"Total", len(s.Results)},
		{"Exitosas", s.Succeeded()},
		{"Omitidas (ya existían)", s.Skipped()},
		{"Fallidas", s.Failed()},
		{"Tasa de éxito", fmt.Sprintf("%.1f%%", s.successRate())},
		{"Duración", s.Finished.Sub(s.Started).Round(time.Second)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	tw.Render()

	if s.Failed() == 0 {
		return
	}

	ft := table.NewWriter()
	ft.SetOutputMirror(w)
	ft.SetStyle(table.StyleRounded)
	ft.SetTitle("Llamadas fallidas")
	ft.AppendHeader(table.Row{"Call ID", "Error"})
	for _, r := range s.Results {
		if !r.Success {
			ft.AppendRow(table.Row{r.CallID, r.Error})
		}
	}
	ft.Render()
}

func (s *Summary) successRate() float64 {
	if len(s.Results) == 0 {
		return 100
	}
	return float64(s.Succeeded()) / float64(len(s.Results)) * 100
}

// WriteJSON persists the full summary as one JSON document.
func (s *Summary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteJSONL appends one line per result, so successive runs accumulate
// a processing log.
func (s *Summary) WriteJSONL(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range s.Results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("append result log: %w", err)
		}
	}
	return nil
}

// WriteXLSX exports a workbook with a results sheet and a summary sheet.
func (s *Summary) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const results = "Resultados"
	if err := f.SetSheetName("Sheet1", results); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []any{"Call ID", "Tipo usuario", "Éxito", "Omitida", "Estrategia", "Transcripción", "Error"}
	if err := f.SetSheetRow(results, "A1", &headers); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i, r := range s.Results {
		row := []any{r.CallID, r.UserType, r.Success, r.Skipped, r.Strategy, r.TranscriptPath, r.Error}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(results, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i, err)
		}
	}

	const summary = "Resumen"
	if _, err := f.NewSheet(summary); err != nil {
		return fmt.Errorf("xlsx summary sheet: %w", err)
	}
	summaryRows := [][]any{
		{"Desde", s.From},
		{"Hasta", s.To},
		{"Total", len(s.Results)},
		{"Exitosas", s.Succeeded()},
		{"Omitidas", s.Skipped()},
		{"Fallidas", s.Failed()},
		{"Tasa de éxito", fmt.Sprintf("%.1f%%", s.successRate())},
	}
	for i := range summaryRows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(summary, cell, &summaryRows[i]); err != nil {
			return fmt.Errorf("xlsx summary row %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("xlsx dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}
