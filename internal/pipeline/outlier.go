package pipeline

import (
	"fmt"
	"math"
	"time"

	"cab-roaming/internal/geo"
	"cab-roaming/internal/trace"
)

// DefaultVelocityThreshold is the fastest plausible cab speed in mph.
const DefaultVelocityThreshold = 85.0

// FilterConfig controls LabelOutliers.
type FilterConfig struct {
	// VelocityThreshold in mph. Records faster than this are rejected.
	VelocityThreshold float64
	// CarryAnchorAcrossVehicles keeps the last accepted point of one vehicle
	// as the anchor for the next vehicle's first record. Off by default; set
	// it to reproduce the anchor semantics of the original notebook pipeline.
	CarryAnchorAcrossVehicles bool
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{VelocityThreshold: DefaultVelocityThreshold}
}

// NaN would reject every record and +Inf would keep every teleport.
func (c FilterConfig) validate() error {
	if !(c.VelocityThreshold > 0) || math.IsInf(c.VelocityThreshold, 0) {
		return fmt.Errorf("velocity threshold must be positive and finite, got %v", c.VelocityThreshold)
	}
	return nil
}

// LabelOutliers sets Keep on a copy of recs. A record is kept when its
// velocity is within the threshold. After a rejection the velocity of the next
// record is measured from the last kept record (the anchor) instead of the
// rejected one, so a single teleport does not invalidate the rest of the trace.
//
// recs must already carry Velocity (see DeriveVelocity).
func LabelOutliers(recs []trace.Record, cfg FilterConfig) []trace.Record {
	out := trace.Clone(recs)
	var (
		anchorLoc  trace.Location
		anchorTime time.Time
		lastKept   = true
	)
	for i := range out {
		r := &out[i]
		if !cfg.CarryAnchorAcrossVehicles && i > 0 && out[i-1].VehicleID != r.VehicleID {
			lastKept = true
		}

		var v float64
		if lastKept {
			v = r.Velocity
		} else {
			v = anchorVelocity(anchorLoc, anchorTime, r)
		}

		if v <= cfg.VelocityThreshold {
			r.Keep = true
			lastKept = true
			anchorLoc = r.Location()
			anchorTime = r.Time
		} else {
			r.Keep = false
			lastKept = false
		}
	}
	return out
}

// anchorVelocity is the mph needed to travel from the anchor to r. Zero
// elapsed time gives 0 when r sits on the anchor and +Inf otherwise.
func anchorVelocity(loc trace.Location, at time.Time, r *trace.Record) float64 {
	d := geo.DistanceMiles(loc, r.Location())
	h := geo.ElapsedHours(at, r.Time)
	if h == 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return d / h
}
