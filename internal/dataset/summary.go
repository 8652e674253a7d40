package dataset

import (
	"sort"

	"video-pipeline-go/internal/pipeline"
	"video-pipeline-go/internal/stage"
)

// Summary aggregates the outcome of a batch.
type Summary struct {
	Total         int                `json:"total"`
	Succeeded     int                `json:"succeeded"`
	Failed        int                `json:"failed"`
	ByErrorKind   map[stage.Kind]int `json:"by_error_kind"`
	ByFailedStage map[string]int     `json:"by_failed_stage"`
	// Diagnostics counts non-fatal failures per stage across successful runs.
	Diagnostics map[string]int `json:"diagnostics"`
	// TopErrors lists the most frequent failure messages, most frequent first.
	TopErrors []string `json:"top_errors"`
}

// Summarize builds the batch summary from run results.
func Summarize(results []pipeline.Result) Summary {
	s := Summary{
		Total:         len(results),
		ByErrorKind:   map[stage.Kind]int{},
		ByFailedStage: map[string]int{},
		Diagnostics:   map[string]int{},
	}
	messages := map[string]int{}
	for _, res := range results {
		for _, d := range res.Diagnostics {
			s.Diagnostics[d.Stage]++
		}
		if res.Success {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.ByErrorKind[res.ErrorKind]++
		if res.FailedStage != "" {
			s.ByFailedStage[res.FailedStage]++
		}
		messages[res.Error]++
	}

	type mc struct {
		msg string
		n   int
	}
	var arr []mc
	for k, v := range messages {
		arr = append(arr, mc{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].n != arr[j].n {
			return arr[i].n > arr[j].n
		}
		return arr[i].msg < arr[j].msg
	})
	s.TopErrors = []string{}
	for i := 0; i < len(arr) && i < 3; i++ {
		s.TopErrors = append(s.TopErrors, arr[i].msg)
	}
	return s
}
