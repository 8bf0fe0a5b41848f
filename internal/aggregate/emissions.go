package aggregate

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultEmissionGramsPerMile is the CO2 emitted by an average
	// passenger car per mile.
	DefaultEmissionGramsPerMile = 404.0
	gramsPerTon                 = 1_000_000.0
)

// CalendarDay is one day of a calendar year.
type CalendarDay struct {
	Date    time.Time
	Weekday time.Weekday
	Month   time.Month
}

// Emissions is the yearly roaming CO2 of a fleet in metric tons.
type Emissions struct {
	CO2Ton        float64 `json:"co2Ton"`
	Upper95CO2Ton float64 `json:"upper95Co2Ton"`
	Lower95CO2Ton float64 `json:"lower95Co2Ton"`
}

// YearDays lists every day of year in loc.
func YearDays(year int, loc *time.Location) []CalendarDay {
	if loc == nil {
		loc = time.UTC
	}
	var out []CalendarDay
	for d := time.Date(year, time.January, 1, 0, 0, 0, 0, loc); d.Year() == year; d = d.AddDate(0, 0, 1) {
		out = append(out, CalendarDay{Date: d, Weekday: d.Weekday(), Month: d.Month()})
	}
	return out
}

// CombustionCabsPerMonth returns the internal combustion cabs still in service
// for each of months months, starting with n and retiring ceil(rate*n) cabs at
// the end of every month.
func CombustionCabsPerMonth(n, months int, replacingRate float64) []int {
	out := make([]int, 0, months)
	for m := 0; m < months; m++ {
		out = append(out, n)
		n -= int(math.Ceil(replacingRate * float64(n)))
	}
	return out
}

// AnnualEmissions projects the weekday roaming statistics onto every day of
// the year, sums them per month, scales each month by the cabs in service
// that month and converts the yearly distance to tons of CO2.
//
// Days whose weekday has no metrics contribute nothing. cabsPerMonth is
// indexed by month, January first, and must cover every month in days.
func AnnualEmissions(metrics []WeekdayMetrics, days []CalendarDay, cabsPerMonth []int, gramsPerMile float64) (Emissions, error) {
	var byWeekday [7]*WeekdayMetrics
	for i := range metrics {
		byWeekday[metrics[i].Weekday] = &metrics[i]
	}

	var mean, upper, lower [12]float64
	for _, d := range days {
		m := byWeekday[d.Weekday]
		if m == nil {
			continue
		}
		mi := int(d.Month) - 1
		if mi >= len(cabsPerMonth) {
			return Emissions{}, fmt.Errorf("no cab count for %s (have %d months)", d.Month, len(cabsPerMonth))
		}
		mean[mi] += m.Mean
		upper[mi] += m.Upper95
		lower[mi] += m.Lower95
	}

	cabs := make([]float64, 12)
	for i := 0; i < len(cabs) && i < len(cabsPerMonth); i++ {
		cabs[i] = float64(cabsPerMonth[i])
	}
	toTon := func(monthly [12]float64) float64 {
		return floats.Dot(monthly[:], cabs) * gramsPerMile / gramsPerTon
	}
	return Emissions{
		CO2Ton:        toTon(mean),
		Upper95CO2Ton: toTon(upper),
		Lower95CO2Ton: toTon(lower),
	}, nil
}
