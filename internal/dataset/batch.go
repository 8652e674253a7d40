package dataset

import (
	"context"

	"golang.org/x/sync/errgroup"

	"video-pipeline-go/internal/pipeline"
)

// Runner executes one pipeline run. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) pipeline.Result
}

// Process runs every row and returns results in row order. At most limit
// runs are in flight; zero or less runs them one at a time.
func Process(ctx context.Context, r Runner, rows []Row, limit int) []pipeline.Result {
	if limit <= 0 {
		limit = 1
	}
	out := make([]pipeline.Result, len(rows))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, row := range rows {
		g.Go(func() error {
			out[i] = r.Run(ctx, row.Input)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
