package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Collector struct {
	reg *prometheus.Registry

	StageDuration *prometheus.HistogramVec // stage label
	StageRows     *prometheus.GaugeVec     // stage label

	RecordsIngested prometheus.Counter
	RecordsKept     prometheus.Counter
	RecordsRejected prometheus.Counter
	VehicleDays     prometheus.Gauge
	Pickups         prometheus.Gauge

	EmissionsTon *prometheus.GaugeVec // band label: mean|upper95|lower95

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	VelocityThreshold prometheus.Gauge
	Contamination     prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

func NewCollector(velocityThreshold, contamination float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roaming_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 18),
		}, []string{"stage"}),
		StageRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roaming_stage_rows",
			Help: "Rows produced by the last run of each pipeline stage.",
		}, []string{"stage"}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roaming_records_ingested_total",
			Help: "Total cab trace records read from the source.",
		}),
		RecordsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roaming_records_kept_total",
			Help: "Total records accepted by the velocity outlier filter.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roaming_records_rejected_total",
			Help: "Total records rejected by the velocity outlier filter.",
		}),
		VehicleDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_vehicle_days",
			Help: "Vehicle-days feeding the weekday statistics.",
		}),
		Pickups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_passenger_pickups",
			Help: "Passenger pickups detected in the batch.",
		}),
		EmissionsTon: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roaming_annual_co2_tons",
			Help: "Projected annual roaming CO2 emissions of the combustion fleet.",
		}, []string{"band"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roaming_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roaming_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roaming_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		VelocityThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_velocity_threshold_mph",
			Help: "Velocity above which records are rejected.",
		}),
		Contamination: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_outlier_contamination",
			Help: "Expected outlier share passed to the vehicle-day outlier remover.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roaming_last_run_timestamp_seconds",
			Help: "Unix time at which the last batch finished.",
		}),
	}

	// Register
	reg.MustRegister(
		c.StageDuration, c.StageRows,
		c.RecordsIngested, c.RecordsKept, c.RecordsRejected, c.VehicleDays, c.Pickups,
		c.EmissionsTon,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.VelocityThreshold, c.Contamination, c.LastRunTimestamp,
	)

	// Set static gauges
	c.VelocityThreshold.Set(velocityThreshold)
	c.Contamination.Set(contamination)

	return c
}

// ObserveStage implements stage.Observer.
func (c *Collector) ObserveStage(name string, d time.Duration, rows int) {
	c.StageDuration.WithLabelValues(name).Observe(d.Seconds())
	c.StageRows.WithLabelValues(name).Set(float64(rows))
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// Push sends every collected metric to a Prometheus Pushgateway under job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	c.LastRunTimestamp.SetToCurrentTime()
	return push.New(url, job).Gatherer(c.reg).PushContext(ctx)
}
