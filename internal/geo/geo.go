// Package geo holds the distance and time primitives used by the trace
// pipeline.
package geo

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"cab-roaming/internal/trace"
)

const metersPerMile = 1609.344

// DistanceMiles returns the great-circle distance between a and b in miles,
// on a sphere of radius orb.EarthRadius (WGS84 equatorial).
func DistanceMiles(a, b trace.Location) float64 {
	return geo.DistanceHaversine(point(a), point(b)) / metersPerMile
}

// ElapsedHours returns end-start in hours. The result is negative when end
// precedes start.
func ElapsedHours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// orb points are (lon, lat).
func point(l trace.Location) orb.Point { return orb.Point{l.Lon, l.Lat} }
