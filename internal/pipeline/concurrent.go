package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cab-roaming/internal/stage"
	"cab-roaming/internal/trace"
)

// PrepareConcurrent is Prepare with vehicles processed in parallel. The batch
// is split into one trace per vehicle, each trace runs the sequential
// stages on its own, and the results are merged back in input order, so the
// output equals Prepare's.
//
// Carrying the anchor across vehicles couples neighbouring traces; in that
// mode the whole batch is processed sequentially.
func PrepareConcurrent(ctx context.Context, recs []trace.Record, cfg FilterConfig, workers int, obs stage.Observer) ([]trace.Record, error) {
	if cfg.CarryAnchorAcrossVehicles || workers == 1 {
		return Prepare(recs, cfg, obs)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := trace.Validate(recs); err != nil {
		return nil, fmt.Errorf("validate records: %w", err)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	traces := trace.Split(recs)
	results := make([][]trace.Record, len(traces))
	log.Printf("preparing %d records across %d vehicles with %d workers", len(recs), len(traces), workers)

	out, err := stage.Run(obs, "prepare_concurrent", func() ([]trace.Record, error) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, tr := range traces {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res := DeriveVelocity(Annotate(tr.Records))
				results[i] = LabelOutliers(res, cfg)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		merged := make([]trace.Record, 0, len(recs))
		for _, res := range results {
			merged = append(merged, res...)
		}
		return merged, nil
	})
	if err != nil {
		return nil, fmt.Errorf("prepare vehicles: %w", err)
	}
	return out, nil
}
