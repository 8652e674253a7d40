package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"video-pipeline-go/internal/pipeline"
)

const (
	runsSheet    = "Runs"
	summarySheet = "Summary"
)

var reportHeader = []interface{}{
	"Line", "Video URL", "Run ID", "Success", "Error", "Error Kind", "Failed Stage",
	"Process Folder", "Audio", "Transcription File", "Voice Data", "Diagnostics", "Transcription",
}

// WriteReport saves one row per run plus a summary sheet to path.
// rows and results are matched by index.
func WriteReport(path string, rows []Row, results []pipeline.Result) error {
	if len(rows) != len(results) {
		return fmt.Errorf("report: %d rows but %d results", len(rows), len(results))
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := f.SetSheetRow(runsSheet, "A1", &reportHeader); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := f.SetRowStyle(runsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	for i, res := range results {
		diags := make([]string, 0, len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			diags = append(diags, d.Stage+": "+d.Message)
		}
		values := []interface{}{
			rows[i].Line, rows[i].Input.VideoURL, res.RunID, res.Success, res.Error, string(res.ErrorKind), res.FailedStage,
			res.ProcessFolder, res.AudioPath, res.TranscriptionPath, res.VoiceDataPath, strings.Join(diags, "\n"), res.Transcription,
		}
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetSheetRow(runsSheet, ref, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}

	if err := writeSummary(f, Summarize(results), bold); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, s Summary, bold int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	lines := [][]interface{}{
		{"Metric", "Value"},
		{"Total", s.Total},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
	}
	for kind, n := range s.ByErrorKind {
		lines = append(lines, []interface{}{"Failed (" + string(kind) + ")", n})
	}
	for stageID, n := range s.ByFailedStage {
		lines = append(lines, []interface{}{"Failed at " + stageID, n})
	}
	for stageID, n := range s.Diagnostics {
		lines = append(lines, []interface{}{"Reported at " + stageID, n})
	}
	for i, msg := range s.TopErrors {
		lines = append(lines, []interface{}{fmt.Sprintf("Top error %d", i+1), msg})
	}
	for i, line := range lines {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, ref, &line); err != nil {
			return fmt.Errorf("report: summary: %w", err)
		}
	}
	return f.SetRowStyle(summarySheet, 1, 1, bold)
}
