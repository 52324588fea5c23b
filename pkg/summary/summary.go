// Package summary renders run history as an XLSX workbook.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Sheet names.
const (
	RunsSheet   = "Runs"
	StagesSheet = "Stages"
)

var (
	runHeaders = []string{
		"Run ID", "Collection", "Document", "Title", "Status",
		"Failed Stage", "Reason", "Started", "Finished", "Duration (s)",
	}
	stageHeaders = []string{
		"Run ID", "Seq", "Stage", "Job ID", "Status", "Polls", "Result", "Error", "Recorded",
	}
)

// ExportRuns loads runs matching q from store and renders them.
func ExportRuns(ctx context.Context, store core.RunStore, q core.RunQuery) ([]byte, error) {
	runs, err := store.ListRuns(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return WriteXLSX(runs)
}

// WriteXLSX returns a workbook with one row per run on "Runs" and one row
// per stage checkpoint on "Stages".
func WriteXLSX(runs []core.PipelineRun) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RunsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(StagesSheet); err != nil {
		return nil, err
	}
	writeHeader(f, RunsSheet, runHeaders)
	writeHeader(f, StagesSheet, stageHeaders)

	row, stageRow := 2, 2
	for _, r := range runs {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		writeRow(f, RunsSheet, row,
			r.ID, r.CollectionID, r.DocumentID, r.Title, string(r.Status),
			string(r.FailedStage), r.Reason, r.StartedAt.UTC().Format(time.RFC3339), finished,
			r.Duration().Round(time.Second).Seconds())
		row++

		for _, cp := range r.Stages {
			writeRow(f, StagesSheet, stageRow,
				r.ID, cp.Seq, string(cp.Kind), cp.JobID, string(cp.Status), cp.Polls,
				cp.Result, cp.Error, cp.CreatedAt.UTC().Format(time.RFC3339))
			stageRow++
		}
	}

	_ = f.SetColWidth(RunsSheet, "A", "A", 38)
	_ = f.SetColWidth(RunsSheet, "D", "D", 32)
	_ = f.SetColWidth(RunsSheet, "G", "G", 60)
	_ = f.SetColWidth(RunsSheet, "H", "I", 22)
	_ = f.SetColWidth(StagesSheet, "A", "A", 38)
	_ = f.SetColWidth(StagesSheet, "G", "H", 48)
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	writeRow(f, sheet, 1, values...)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
