package pipeline

import (
	"math"
	"time"

	"cab-roaming/internal/geo"
	"cab-roaming/internal/trace"
)

// Annotate sets Distance and Hours on a copy of recs, measured from the
// previous record of the same vehicle. The first record of every vehicle run
// gets zero for both.
//
// recs must be sorted by vehicle id then time; see trace.Validate.
func Annotate(recs []trace.Record) []trace.Record {
	out := trace.Clone(recs)
	var (
		prevLoc     trace.Location
		prevTime    time.Time
		prevVehicle string
		havePrev    bool
	)
	for i := range out {
		r := &out[i]
		if !havePrev || prevVehicle != r.VehicleID {
			r.Distance = 0
			r.Hours = 0
		} else {
			r.Distance = geo.DistanceMiles(prevLoc, r.Location())
			r.Hours = geo.ElapsedHours(prevTime, r.Time)
		}
		prevLoc = r.Location()
		prevTime = r.Time
		prevVehicle = r.VehicleID
		havePrev = true
	}
	return out
}

// DeriveVelocity sets Velocity = Distance / Hours on a copy of recs. Records
// with zero elapsed time have no defined velocity; they are zero-filled in a
// separate pass once all quotients are computed.
func DeriveVelocity(recs []trace.Record) []trace.Record {
	out := trace.Clone(recs)
	for i := range out {
		out[i].Velocity = out[i].Distance / out[i].Hours
	}
	normalizeUndefined(out)
	return out
}

// normalizeUndefined zero-fills velocities that came from a zero elapsed
// time or are otherwise not a number.
func normalizeUndefined(recs []trace.Record) {
	for i := range recs {
		if recs[i].Hours == 0 || math.IsNaN(recs[i].Velocity) {
			recs[i].Velocity = 0
		}
	}
}
