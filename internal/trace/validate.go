package trace

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrOrderingViolation = errors.New("ordering violation")
)

// MalformedInputError identifies a record that is missing a required field
// or carries a non-finite or out-of-range value.
type MalformedInputError struct {
	Index     int
	VehicleID string
	Reason    string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("record %d (vehicle %q): %s", e.Index, e.VehicleID, e.Reason)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// OrderingViolationError reports the first record that breaks the
// (vehicle id, time) ordering the sequential stages require.
type OrderingViolationError struct {
	Index     int
	VehicleID string
	Reason    string
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("record %d (vehicle %q): %s", e.Index, e.VehicleID, e.Reason)
}

func (e *OrderingViolationError) Unwrap() error { return ErrOrderingViolation }

// CheckRecord validates the fields of a single record.
func CheckRecord(i int, r Record) error {
	bad := func(format string, args ...any) error {
		return &MalformedInputError{Index: i, VehicleID: r.VehicleID, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(r.VehicleID) == "" {
		return bad("missing vehicle id")
	}
	if math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) || r.Lat < -90 || r.Lat > 90 {
		return bad("invalid latitude %v", r.Lat)
	}
	if math.IsNaN(r.Lon) || math.IsInf(r.Lon, 0) || r.Lon < -180 || r.Lon > 180 {
		return bad("invalid longitude %v", r.Lon)
	}
	if r.Time.IsZero() {
		return bad("missing timestamp")
	}
	return nil
}

// Validate checks every record and that the batch is grouped by vehicle, each
// vehicle forming a single contiguous run ordered by time.
func Validate(recs []Record) error {
	seen := make(map[string]struct{})
	for i, r := range recs {
		if err := CheckRecord(i, r); err != nil {
			return err
		}
		if i == 0 {
			seen[r.VehicleID] = struct{}{}
			continue
		}
		prev := recs[i-1]
		if prev.VehicleID == r.VehicleID {
			if r.Time.Before(prev.Time) {
				return &OrderingViolationError{Index: i, VehicleID: r.VehicleID,
					Reason: fmt.Sprintf("time %s before previous %s", r.Time.Format(time.RFC3339), prev.Time.Format(time.RFC3339))}
			}
			continue
		}
		if _, ok := seen[r.VehicleID]; ok {
			return &OrderingViolationError{Index: i, VehicleID: r.VehicleID, Reason: "vehicle records are not contiguous"}
		}
		seen[r.VehicleID] = struct{}{}
	}
	return nil
}

// Sort returns a copy of recs ordered by vehicle id then time. Equal keys
// keep their input order.
func Sort(recs []Record) []Record {
	out := Clone(recs)
	slices.SortStableFunc(out, func(a, b Record) int {
		if c := strings.Compare(a.VehicleID, b.VehicleID); c != 0 {
			return c
		}
		return a.Time.Compare(b.Time)
	})
	return out
}

// Split groups a sorted batch into one Trace per vehicle run. The traces
// share the backing array of recs.
func Split(recs []Record) []Trace {
	var traces []Trace
	start := 0
	for i := 1; i <= len(recs); i++ {
		if i < len(recs) && recs[i].VehicleID == recs[start].VehicleID {
			continue
		}
		traces = append(traces, Trace{VehicleID: recs[start].VehicleID, Records: recs[start:i:i]})
		start = i
	}
	return traces
}
