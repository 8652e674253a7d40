package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"video-pipeline-go/internal/pipeline"
)

// Row is one run request read from a workbook. Line is the 1-based sheet row.
type Row struct {
	Line  int            `json:"line"`
	Input pipeline.Input `json:"input"`
}

type columns struct {
	video, email, slack, voice int
}

// detectColumns maps headers to input fields by name heuristics.
func detectColumns(header []string) columns {
	c := columns{video: -1, email: -1, slack: -1, voice: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "slack") || strings.Contains(l, "webhook"):
			if c.slack == -1 {
				c.slack = i
			}
		case strings.Contains(l, "mail"):
			if c.email == -1 {
				c.email = i
			}
		case strings.Contains(l, "voice"):
			if c.voice == -1 {
				c.voice = i
			}
		case strings.Contains(l, "video") || strings.Contains(l, "url") || strings.Contains(l, "link"):
			if c.video == -1 {
				c.video = i
			}
		}
	}
	// fallback: first column holds the video
	if c.video == -1 && len(header) > 0 {
		c.video = 0
	}
	return c
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// Load reads run requests from the first sheet of an xlsx workbook. Rows
// without an http(s) video URL are skipped.
func Load(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	var out []Row
	for i, r := range rows[1:] {
		in := pipeline.Input{
			VideoURL:        cell(r, cols.video),
			Email:           cell(r, cols.email),
			SlackWebhookURL: cell(r, cols.slack),
			VoiceID:         cell(r, cols.voice),
		}
		lower := strings.ToLower(in.VideoURL)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		out = append(out, Row{Line: i + 2, Input: in})
	}
	return out, nil
}
