// Package report holds the result of one batch run as published and stored.
package report

import (
	"time"

	"github.com/google/uuid"

	"cab-roaming/internal/aggregate"
)

type Report struct {
	RunID       uuid.UUID `json:"runId"`
	City        string    `json:"city,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`

	VelocityThreshold float64 `json:"velocityThresholdMph"`
	Records           int     `json:"records"`
	Rejected          int     `json:"rejected"`
	Vehicles          int     `json:"vehicles"`
	VehicleDays       int     `json:"vehicleDays"`
	Pickups           int     `json:"pickups"`

	Weekdays []Weekday `json:"weekdays"`

	Year         int                 `json:"year"`
	CabsPerMonth []int               `json:"cabsPerMonth"`
	Emissions    aggregate.Emissions `json:"emissions"`
}

type Weekday struct {
	Weekday      string  `json:"weekday"`
	Index        int     `json:"index"` // 0 = Sunday
	Samples      int     `json:"samples"`
	MeanDistance float64 `json:"meanDistance"`
	StdDistance  float64 `json:"stdDistance"`
	Upper95      float64 `json:"upper95Distance"`
	Lower95      float64 `json:"lower95Distance"`
}

// New starts a report with a fresh run id.
func New(city string, now time.Time) *Report {
	return &Report{RunID: uuid.New(), City: city, GeneratedAt: now.UTC()}
}

// SetWeekdays copies the weekday statistics into r.
func (r *Report) SetWeekdays(ms []aggregate.WeekdayMetrics) {
	r.Weekdays = make([]Weekday, 0, len(ms))
	for _, m := range ms {
		r.Weekdays = append(r.Weekdays, Weekday{
			Weekday:      m.Weekday.String(),
			Index:        int(m.Weekday),
			Samples:      m.Samples,
			MeanDistance: m.Mean,
			StdDistance:  m.Std,
			Upper95:      m.Upper95,
			Lower95:      m.Lower95,
		})
	}
}
