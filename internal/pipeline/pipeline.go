// Package pipeline turns raw cab samples into annotated, outlier-labelled
// records. Every stage is a single forward pass that returns a new slice.
package pipeline

import (
	"fmt"

	"cab-roaming/internal/stage"
	"cab-roaming/internal/trace"
)

// Prepare validates recs and runs annotation, velocity derivation and outlier
// labelling in order. recs must be sorted by vehicle id then time (trace.Sort);
// unsorted input fails with a trace.OrderingViolationError.
func Prepare(recs []trace.Record, cfg FilterConfig, obs stage.Observer) ([]trace.Record, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, err := stage.Run(obs, "validate", func() ([]trace.Record, error) {
		return recs, trace.Validate(recs)
	}); err != nil {
		return nil, fmt.Errorf("validate records: %w", err)
	}
	out := stage.Pure(obs, "add_distances", func() []trace.Record { return Annotate(recs) })
	out = stage.Pure(obs, "add_velocities", func() []trace.Record { return DeriveVelocity(out) })
	out = stage.Pure(obs, "label_velocity_outliers", func() []trace.Record { return LabelOutliers(out, cfg) })
	return out, nil
}

// Kept returns the records labelled Keep, in order.
func Kept(recs []trace.Record) []trace.Record {
	out := make([]trace.Record, 0, len(recs))
	for _, r := range recs {
		if r.Keep {
			out = append(out, r)
		}
	}
	return out
}

// Rejected counts the records not labelled Keep.
func Rejected(recs []trace.Record) int {
	n := 0
	for _, r := range recs {
		if !r.Keep {
			n++
		}
	}
	return n
}
