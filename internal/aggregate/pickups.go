package aggregate

import "cab-roaming/internal/trace"

// PassengerPickups returns the records where a cab turned from vacant to
// occupied, that is where the previous record of the same vehicle had no
// passenger and this one has. recs must be sorted by vehicle id then time.
func PassengerPickups(recs []trace.Record) []trace.Record {
	var out []trace.Record
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if prev.VehicleID == cur.VehicleID && !prev.Occupied && cur.Occupied {
			out = append(out, cur)
		}
	}
	return out
}
