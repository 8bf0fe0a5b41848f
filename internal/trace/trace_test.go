package trace

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2008, 5, 17, 10, 0, 0, 0, time.UTC)

func TestCheckRecord(t *testing.T) {
	good := Record{VehicleID: "abboip", Lat: 37.75, Lon: -122.39, Time: t0}
	require.NoError(t, CheckRecord(0, good))

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing id", func(r *Record) { r.VehicleID = " " }},
		{"nan latitude", func(r *Record) { r.Lat = math.NaN() }},
		{"infinite longitude", func(r *Record) { r.Lon = math.Inf(-1) }},
		{"latitude out of range", func(r *Record) { r.Lat = 91 }},
		{"longitude out of range", func(r *Record) { r.Lon = 181 }},
		{"zero time", func(r *Record) { r.Time = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good
			tt.mutate(&r)
			err := CheckRecord(7, r)
			require.ErrorIs(t, err, ErrMalformedInput)
			var me *MalformedInputError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, 7, me.Index)
			assert.Contains(t, err.Error(), "record 7")
		})
	}
}

func TestValidate(t *testing.T) {
	a := func(min int) Record {
		return Record{VehicleID: "A", Lat: 1, Lon: 1, Time: t0.Add(time.Duration(min) * time.Minute)}
	}
	b := func(min int) Record {
		return Record{VehicleID: "B", Lat: 1, Lon: 1, Time: t0.Add(time.Duration(min) * time.Minute)}
	}

	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate([]Record{a(0), a(0), a(1), b(0), b(5)}))

	err := Validate([]Record{a(0), a(2), a(1)})
	require.ErrorIs(t, err, ErrOrderingViolation)
	var oe *OrderingViolationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 2, oe.Index)

	err = Validate([]Record{a(0), b(0), a(1)})
	require.ErrorIs(t, err, ErrOrderingViolation)
	assert.Contains(t, err.Error(), "not contiguous")
}

func TestSortAndSplit(t *testing.T) {
	in := []Record{
		{VehicleID: "B", Time: t0.Add(time.Minute), Lat: 2},
		{VehicleID: "A", Time: t0.Add(time.Minute), Lat: 1},
		{VehicleID: "B", Time: t0, Lat: 3},
		{VehicleID: "A", Time: t0, Lat: 4},
	}
	sorted := Sort(in)
	assert.Equal(t, "B", in[0].VehicleID, "Sort must not reorder its input")

	var lats []float64
	for _, r := range sorted {
		lats = append(lats, r.Lat)
	}
	assert.Equal(t, []float64{4, 1, 3, 2}, lats)
	require.NoError(t, Validate(sorted))

	traces := Split(sorted)
	require.Len(t, traces, 2)
	assert.Equal(t, "A", traces[0].VehicleID)
	assert.Len(t, traces[0].Records, 2)
	assert.Equal(t, "B", traces[1].VehicleID)
	assert.Len(t, traces[1].Records, 2)

	assert.Empty(t, Split(nil))
}
