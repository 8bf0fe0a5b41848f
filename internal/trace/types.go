package trace

import "time"

// Record is one GPS sample of a cab plus the fields derived by the pipeline.
type Record struct {
	VehicleID string
	Lat       float64
	Lon       float64
	Time      time.Time // second resolution at ingestion
	Occupied  bool      // passenger aboard

	Distance float64 // miles from the previous record, >= 0
	Hours    float64 // elapsed hours from the previous record, >= 0
	Velocity float64 // mph, >= 0
	Keep     bool    // false for velocity outliers
}

// Location is a (lat, lon) pair in degrees.
type Location struct {
	Lat float64
	Lon float64
}

func (r Record) Location() Location { return Location{Lat: r.Lat, Lon: r.Lon} }

// Trace is the time-ordered run of records of a single vehicle.
type Trace struct {
	VehicleID string
	Records   []Record
}

// Clone returns a copy of recs that shares no backing array with it.
func Clone(recs []Record) []Record {
	if recs == nil {
		return nil
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}
