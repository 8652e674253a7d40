package dataset

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/xuri/excelize/v2"

	"video-pipeline-go/internal/pipeline"
	"video-pipeline-go/internal/stage"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", ref, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "videos.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DetectsColumns(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Voice ID", "Notify Email", "Video URL", "Slack Webhook"},
		{"v1", "a@b.com", "https://x/v1.mp4", "https://hooks/x"},
		{"v2", "", "not-a-url", ""},
		{"", "c@d.com", " HTTPS://x/v3.mp4 ", ""},
	})
	rows, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows: %+v", len(rows), rows)
	}
	want := pipeline.Input{VideoURL: "https://x/v1.mp4", Email: "a@b.com", SlackWebhookURL: "https://hooks/x", VoiceID: "v1"}
	if rows[0].Line != 2 || rows[0].Input != want {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	if rows[1].Line != 4 || rows[1].Input.VideoURL != "HTTPS://x/v3.mp4" || rows[1].Input.Email != "c@d.com" {
		t.Fatalf("row 1 = %+v", rows[1])
	}
}

func TestLoad_FallsBackToFirstColumn(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Source", "Owner"},
		{"https://x/v.mp4", "ops"},
	})
	rows, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Input.VideoURL != "https://x/v.mp4" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeWorkbook(t, [][]interface{}{{"Video URL"}})
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for header-only sheet")
	}
}

type echoRunner struct {
	inFlight, peak atomic.Int32
}

func (e *echoRunner) Run(ctx context.Context, in pipeline.Input) pipeline.Result {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if in.VoiceID == "bad" {
		return pipeline.Result{RunID: in.VideoURL, Error: "boom", ErrorKind: stage.KindAggregation, FailedStage: pipeline.StageAudio}
	}
	return pipeline.Result{RunID: in.VideoURL, Success: true, Transcription: "t"}
}

func TestProcess_KeepsOrderAndLimit(t *testing.T) {
	rows := []Row{
		{Line: 2, Input: pipeline.Input{VideoURL: "https://x/1"}},
		{Line: 3, Input: pipeline.Input{VideoURL: "https://x/2", VoiceID: "bad"}},
		{Line: 4, Input: pipeline.Input{VideoURL: "https://x/3"}},
	}
	r := &echoRunner{}
	results := Process(context.Background(), r, rows, 1)
	for i, res := range results {
		if res.RunID != rows[i].Input.VideoURL {
			t.Fatalf("result %d out of order: %+v", i, res)
		}
	}
	if r.peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d", r.peak.Load())
	}

	s := Summarize(results)
	if s.Total != 3 || s.Succeeded != 2 || s.Failed != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.ByErrorKind[stage.KindAggregation] != 1 || s.ByFailedStage[pipeline.StageAudio] != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if len(s.TopErrors) != 1 || s.TopErrors[0] != "boom" {
		t.Fatalf("top errors = %v", s.TopErrors)
	}
}

func TestWriteReport(t *testing.T) {
	rows := []Row{
		{Line: 2, Input: pipeline.Input{VideoURL: "https://x/1"}},
		{Line: 3, Input: pipeline.Input{VideoURL: "https://x/2"}},
	}
	results := []pipeline.Result{
		{Success: true, RunID: "r1", AudioPath: "https://b/a.mp3", Diagnostics: []pipeline.Diagnostic{{Stage: pipeline.StageVoice, Message: "voice down"}}},
		{Success: false, RunID: "r2", Error: "audio extraction failed or buffer is missing", ErrorKind: stage.KindAggregation},
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteReport(path, rows, results); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	checks := map[string]string{
		"A1": "Line",
		"B2": "https://x/1",
		"C2": "r1",
		"I2": "https://b/a.mp3",
		"L2": "voice-extractor: voice down",
		"E3": "audio extraction failed or buffer is missing",
		"F3": "aggregation",
	}
	for ref, want := range checks {
		got, err := f.GetCellValue(runsSheet, ref)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", ref, got, want)
		}
	}
	if got, _ := f.GetCellValue(summarySheet, "B2"); got != "2" {
		t.Errorf("summary total = %q", got)
	}

	if err := WriteReport(path, rows[:1], results); err == nil {
		t.Fatal("expected mismatch error")
	}
}
