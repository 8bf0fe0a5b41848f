// Package aggregate derives roaming distance statistics and fleet emissions
// from prepared cab records.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"cab-roaming/internal/pipeline"
	"cab-roaming/internal/stage"
	"cab-roaming/internal/trace"
)

// VehicleDay is the distance one cab roamed vacant during one calendar day.
type VehicleDay struct {
	VehicleID    string
	Day          time.Time // midnight in the aggregation time zone
	Weekday      time.Weekday
	RoamDistance float64 // miles
}

// WeekdayMetrics summarizes the VehicleDays of one weekday.
type WeekdayMetrics struct {
	Weekday time.Weekday
	Samples int
	Mean    float64
	Std     float64 // sample standard deviation, 0 with fewer than two samples
	Upper95 float64 // Mean + 2*Std
	Lower95 float64 // Mean - 2*Std
}

// OutlierRemover drops suspicious vehicle-day rows before the weekday
// statistics are computed. contamination is the expected outlier share, in
// (0, 1).
type OutlierRemover interface {
	Filter(days []VehicleDay, contamination float64) ([]VehicleDay, error)
}

// RoamingOptions configures RoamingPerWeekday.
type RoamingOptions struct {
	Location *time.Location // time zone used to cut days; UTC when nil
	// KeptOnly drops records labelled as velocity outliers and measures the
	// distance of the remaining ones from the previous kept record.
	KeptOnly bool
	// Remover is optional.
	Remover       OutlierRemover
	Contamination float64
}

// SelectVacant returns the records without a passenger aboard.
func SelectVacant(recs []trace.Record) []trace.Record {
	out := make([]trace.Record, 0, len(recs))
	for _, r := range recs {
		if !r.Occupied {
			out = append(out, r)
		}
	}
	return out
}

// DayOf truncates t to midnight in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// RoamingPerVehicleDay sums Distance per vehicle and calendar day. The result
// is ordered by vehicle id then day.
func RoamingPerVehicleDay(recs []trace.Record, loc *time.Location) []VehicleDay {
	type key struct {
		vehicle string
		day     time.Time
	}
	idx := make(map[key]int)
	var days []VehicleDay
	for _, r := range recs {
		k := key{r.VehicleID, DayOf(r.Time, loc)}
		i, ok := idx[k]
		if !ok {
			i = len(days)
			idx[k] = i
			days = append(days, VehicleDay{VehicleID: k.vehicle, Day: k.day, Weekday: k.day.Weekday()})
		}
		days[i].RoamDistance += r.Distance
	}
	slices.SortFunc(days, func(a, b VehicleDay) int {
		if c := cmp.Compare(a.VehicleID, b.VehicleID); c != 0 {
			return c
		}
		return a.Day.Compare(b.Day)
	})
	return days
}

// WeekdayStats computes mean, sample standard deviation and the ±2σ band of
// the roaming distance for every weekday present in days, Sunday first.
func WeekdayStats(days []VehicleDay) []WeekdayMetrics {
	var byDay [7][]float64
	for _, d := range days {
		byDay[d.Weekday] = append(byDay[d.Weekday], d.RoamDistance)
	}
	var out []WeekdayMetrics
	for wd, xs := range byDay {
		if len(xs) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(xs, nil)
		if len(xs) < 2 {
			std = 0
		}
		out = append(out, WeekdayMetrics{
			Weekday: time.Weekday(wd),
			Samples: len(xs),
			Mean:    mean,
			Std:     std,
			Upper95: mean + 2*std,
			Lower95: mean - 2*std,
		})
	}
	return out
}

// RoamingPerWeekday runs the roaming chain: optional velocity outlier removal,
// vacant records, per vehicle-day totals, optional vehicle-day outlier
// removal, weekday statistics. It also returns the vehicle-days that fed the
// statistics.
func RoamingPerWeekday(recs []trace.Record, opts RoamingOptions, obs stage.Observer) ([]VehicleDay, []WeekdayMetrics, error) {
	if opts.KeptOnly {
		recs = stage.Pure(obs, "reannotate_kept", func() []trace.Record { return pipeline.Annotate(pipeline.Kept(recs)) })
	}
	vacant := stage.Pure(obs, "select_vacant", func() []trace.Record { return SelectVacant(recs) })
	days := stage.Pure(obs, "total_roaming_distance_per_day_and_cab", func() []VehicleDay {
		return RoamingPerVehicleDay(vacant, opts.Location)
	})
	if opts.Remover != nil {
		var err error
		days, err = stage.Run(obs, "remove_outliers", func() ([]VehicleDay, error) {
			return opts.Remover.Filter(days, opts.Contamination)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remove outliers: %w", err)
		}
	}
	metrics := stage.Pure(obs, "roaming_distance_per_weekday_metrics", func() []WeekdayMetrics {
		return WeekdayStats(days)
	})
	return days, metrics, nil
}
