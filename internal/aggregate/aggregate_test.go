package aggregate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cab-roaming/internal/trace"
)

// 2008-05-17 is a Saturday.
var sat = time.Date(2008, 5, 17, 0, 0, 0, 0, time.UTC)

func TestSelectVacant(t *testing.T) {
	in := []trace.Record{
		{VehicleID: "A", Occupied: false},
		{VehicleID: "A", Occupied: true},
		{VehicleID: "B", Occupied: false},
	}
	out := SelectVacant(in)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].VehicleID)
	assert.Equal(t, "B", out[1].VehicleID)
}

func TestDayOf(t *testing.T) {
	at := time.Date(2008, 5, 17, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, sat, DayOf(at, nil))

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	day := DayOf(at, la)
	assert.Equal(t, 17, day.Day())
	assert.Equal(t, 0, day.Hour())

	early := time.Date(2008, 5, 18, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, 17, DayOf(early, la).Day(), "03:00 UTC is still the previous day in California")
}

func TestRoamingPerVehicleDay(t *testing.T) {
	in := []trace.Record{
		{VehicleID: "B", Time: sat.Add(9 * time.Hour), Distance: 1},
		{VehicleID: "A", Time: sat.Add(10 * time.Hour), Distance: 2},
		{VehicleID: "A", Time: sat.Add(11 * time.Hour), Distance: 3},
		{VehicleID: "A", Time: sat.Add(30 * time.Hour), Distance: 4},
	}
	days := RoamingPerVehicleDay(in, time.UTC)
	require.Len(t, days, 3)

	assert.Equal(t, VehicleDay{VehicleID: "A", Day: sat, Weekday: time.Saturday, RoamDistance: 5}, days[0])
	assert.Equal(t, "A", days[1].VehicleID)
	assert.Equal(t, time.Sunday, days[1].Weekday)
	assert.Equal(t, 4.0, days[1].RoamDistance)
	assert.Equal(t, "B", days[2].VehicleID)
}

func TestWeekdayStats(t *testing.T) {
	t.Run("sample standard deviation and band", func(t *testing.T) {
		got := WeekdayStats([]VehicleDay{
			{VehicleID: "A", Weekday: time.Monday, RoamDistance: 10},
			{VehicleID: "B", Weekday: time.Monday, RoamDistance: 20},
		})
		require.Len(t, got, 1)
		m := got[0]
		std := math.Sqrt(50)
		assert.Equal(t, time.Monday, m.Weekday)
		assert.Equal(t, 2, m.Samples)
		assert.InDelta(t, 15.0, m.Mean, 1e-12)
		assert.InDelta(t, std, m.Std, 1e-12)
		assert.InDelta(t, 15+2*std, m.Upper95, 1e-12)
		assert.InDelta(t, 15-2*std, m.Lower95, 1e-12)
	})

	t.Run("single sample has zero spread", func(t *testing.T) {
		got := WeekdayStats([]VehicleDay{{Weekday: time.Friday, RoamDistance: 7}})
		require.Len(t, got, 1)
		assert.Equal(t, 7.0, got[0].Mean)
		assert.Equal(t, 0.0, got[0].Std)
		assert.Equal(t, 7.0, got[0].Upper95)
	})

	t.Run("ordered by weekday", func(t *testing.T) {
		got := WeekdayStats([]VehicleDay{
			{Weekday: time.Saturday, RoamDistance: 1},
			{Weekday: time.Sunday, RoamDistance: 1},
			{Weekday: time.Wednesday, RoamDistance: 1},
		})
		require.Len(t, got, 3)
		assert.Equal(t, time.Sunday, got[0].Weekday)
		assert.Equal(t, time.Wednesday, got[1].Weekday)
		assert.Equal(t, time.Saturday, got[2].Weekday)
	})
}

type dropFirst struct{ gotContamination float64 }

func (d *dropFirst) Filter(days []VehicleDay, contamination float64) ([]VehicleDay, error) {
	d.gotContamination = contamination
	return days[1:], nil
}

type failing struct{}

func (failing) Filter([]VehicleDay, float64) ([]VehicleDay, error) { return nil, errors.New("model down") }

func north(lat, miles float64) float64 {
	return lat + miles*1609.344/orb.EarthRadius*180/math.Pi
}

func TestRoamingPerWeekday(t *testing.T) {
	lat := 37.0
	in := []trace.Record{
		{VehicleID: "A", Lat: lat, Lon: -122, Time: sat.Add(time.Hour), Keep: true},
		{VehicleID: "A", Lat: north(lat, 500), Lon: -122, Time: sat.Add(2 * time.Hour), Distance: 500, Keep: false},
		{VehicleID: "A", Lat: north(lat, 3), Lon: -122, Time: sat.Add(3 * time.Hour), Distance: 497, Keep: true},
		{VehicleID: "A", Lat: north(lat, 7), Lon: -122, Time: sat.Add(4 * time.Hour), Distance: 4, Keep: true, Occupied: true},
		{VehicleID: "B", Lat: 40, Lon: -120, Time: sat.Add(time.Hour), Keep: true},
		{VehicleID: "B", Lat: north(40, 5), Lon: -120, Time: sat.Add(2 * time.Hour), Distance: 5, Keep: true},
	}

	t.Run("rejected records are dropped and distances re-measured", func(t *testing.T) {
		days, metrics, err := RoamingPerWeekday(in, RoamingOptions{KeptOnly: true}, nil)
		require.NoError(t, err)
		require.Len(t, days, 2)
		assert.InDelta(t, 3.0, days[0].RoamDistance, 1e-6)
		assert.InDelta(t, 5.0, days[1].RoamDistance, 1e-6)
		require.Len(t, metrics, 1)
		assert.InDelta(t, 4.0, metrics[0].Mean, 1e-6)
		assert.Equal(t, 2, metrics[0].Samples)
	})

	t.Run("outlier labels ignored", func(t *testing.T) {
		days, _, err := RoamingPerWeekday(in, RoamingOptions{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 997.0, days[0].RoamDistance)
	})

	t.Run("remover runs between totals and stats", func(t *testing.T) {
		rm := &dropFirst{}
		days, metrics, err := RoamingPerWeekday(in, RoamingOptions{KeptOnly: true, Remover: rm, Contamination: 0.05}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.05, rm.gotContamination)
		require.Len(t, days, 1)
		assert.Equal(t, "B", days[0].VehicleID)
		assert.InDelta(t, 5.0, metrics[0].Mean, 1e-6)
	})

	t.Run("remover failure", func(t *testing.T) {
		_, _, err := RoamingPerWeekday(in, RoamingOptions{Remover: failing{}}, nil)
		assert.ErrorContains(t, err, "model down")
	})

	t.Run("input is not modified", func(t *testing.T) {
		before := trace.Clone(in)
		_, _, err := RoamingPerWeekday(in, RoamingOptions{KeptOnly: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, before, in)
	})
}

func TestYearDays(t *testing.T) {
	assert.Len(t, YearDays(2023, nil), 365)
	days := YearDays(2024, time.UTC)
	require.Len(t, days, 366)
	assert.Equal(t, time.Monday, days[0].Weekday)
	assert.Equal(t, time.January, days[0].Month)
	assert.Equal(t, time.December, days[365].Month)
	assert.Equal(t, 31, days[365].Date.Day())
}

func TestCombustionCabsPerMonth(t *testing.T) {
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 0}, CombustionCabsPerMonth(10, 12, 0.1))
	assert.Equal(t, []int{500, 500, 500}, CombustionCabsPerMonth(500, 3, 0))
	assert.Equal(t, []int{100, 75, 56}, CombustionCabsPerMonth(100, 3, 0.25))
}

func allWeekdays(mean, std float64) []WeekdayMetrics {
	var out []WeekdayMetrics
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		out = append(out, WeekdayMetrics{Weekday: wd, Samples: 2, Mean: mean, Std: std, Upper95: mean + 2*std, Lower95: mean - 2*std})
	}
	return out
}

func TestAnnualEmissions(t *testing.T) {
	days := YearDays(2023, time.UTC)

	t.Run("single cab in january", func(t *testing.T) {
		cabs := make([]int, 12)
		cabs[0] = 1
		got, err := AnnualEmissions(allWeekdays(100, 0), days, cabs, DefaultEmissionGramsPerMile)
		require.NoError(t, err)
		// 31 days * 100 miles * 404 g / 1e6
		assert.InDelta(t, 1.2524, got.CO2Ton, 1e-9)
		assert.InDelta(t, got.CO2Ton, got.Upper95CO2Ton, 1e-12)
		assert.InDelta(t, got.CO2Ton, got.Lower95CO2Ton, 1e-12)
	})

	t.Run("whole fleet all year with a band", func(t *testing.T) {
		cabs := CombustionCabsPerMonth(2, 12, 0)
		got, err := AnnualEmissions(allWeekdays(10, 1), days, cabs, 400)
		require.NoError(t, err)
		assert.InDelta(t, 365*10*2*400/1e6, got.CO2Ton, 1e-9)
		assert.InDelta(t, 365*12*2*400/1e6, got.Upper95CO2Ton, 1e-9)
		assert.InDelta(t, 365*8*2*400/1e6, got.Lower95CO2Ton, 1e-9)
	})

	t.Run("missing weekday contributes nothing", func(t *testing.T) {
		cabs := CombustionCabsPerMonth(1, 12, 0)
		only := []WeekdayMetrics{{Weekday: time.Sunday, Mean: 1, Upper95: 1, Lower95: 1}}
		got, err := AnnualEmissions(only, days, cabs, gramsPerTon)
		require.NoError(t, err)
		assert.InDelta(t, 53.0, got.CO2Ton, 1e-9, "2023 has 53 Sundays")
	})

	t.Run("cab counts must cover the year", func(t *testing.T) {
		_, err := AnnualEmissions(allWeekdays(1, 0), days, []int{1, 1}, 404)
		assert.ErrorContains(t, err, "March")
	})
}

func TestPassengerPickups(t *testing.T) {
	in := []trace.Record{
		{VehicleID: "A", Occupied: false},
		{VehicleID: "A", Occupied: true, Lat: 1},
		{VehicleID: "A", Occupied: true},
		{VehicleID: "A", Occupied: false},
		{VehicleID: "B", Occupied: true},
		{VehicleID: "B", Occupied: false},
		{VehicleID: "B", Occupied: true, Lat: 2},
	}
	got := PassengerPickups(in)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Lat)
	assert.Equal(t, 2.0, got[1].Lat)
}
