package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cab-roaming/internal/aggregate"
	"cab-roaming/internal/anomaly"
	"cab-roaming/internal/cabfile"
	"cab-roaming/internal/config"
	"cab-roaming/internal/db"
	"cab-roaming/internal/metrics"
	"cab-roaming/internal/pipeline"
	"cab-roaming/internal/publisher"
	"cab-roaming/internal/report"
	"cab-roaming/internal/trace"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.VelocityThreshold, cfg.OutlierContamination)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var sqlDB *sql.DB
	if cfg.Source == config.SourceDB || cfg.PersistResults {
		var name string
		sqlDB, name, err = db.OpenForCity(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer sqlDB.Close()
		if name != "" {
			log.Printf("Using database %q for city %q", name, cfg.City)
		} else {
			log.Printf("Using database %s", db.Redact(cfg.DatabaseURL))
		}
	}

	rep, err := run(ctx, cfg, sqlDB, mcol)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	if cfg.PersistResults {
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			log.Fatalf("persist: %v", err)
		}
		if err := db.SaveReport(ctx, sqlDB, rep); err != nil {
			log.Fatalf("persist: %v", err)
		}
		log.Printf("stored run %s", rep.RunID)
	}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		if err := pub.PublishReport(rep); err != nil {
			log.Printf("report not published: %v", err)
		}
		pub.Close()
	}

	if cfg.MetricsPushURL != "" {
		if err := mcol.Push(ctx, cfg.MetricsPushURL, "cab_roaming"); err != nil {
			log.Printf("metrics push error: %v", err)
		}
	}

	log.Printf("run %s: %.1f t CO2 (95%% band %.1f..%.1f) for %d", rep.RunID,
		rep.Emissions.CO2Ton, rep.Emissions.Lower95CO2Ton, rep.Emissions.Upper95CO2Ton, rep.Year)
}

// run loads the cab traces, cleans them and computes the roaming report.
func run(ctx context.Context, cfg *config.Config, sqlDB *sql.DB, mcol *metrics.Collector) (*report.Report, error) {
	recs, err := loadRecords(ctx, cfg, sqlDB)
	if err != nil {
		return nil, err
	}
	mcol.RecordsIngested.Add(float64(len(recs)))
	if len(recs) == 0 {
		return nil, fmt.Errorf("no cab records found")
	}

	filterCfg := pipeline.FilterConfig{
		VelocityThreshold:         cfg.VelocityThreshold,
		CarryAnchorAcrossVehicles: cfg.CarryAnchorAcrossVehicles,
	}
	prepared, err := pipeline.PrepareConcurrent(ctx, recs, filterCfg, cfg.Workers, mcol)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	rejected := pipeline.Rejected(prepared)
	mcol.RecordsRejected.Add(float64(rejected))
	mcol.RecordsKept.Add(float64(len(prepared) - rejected))

	remover, err := anomaly.New(cfg.OutlierFilter)
	if err != nil {
		return nil, err
	}
	days, weekdays, err := aggregate.RoamingPerWeekday(prepared, aggregate.RoamingOptions{
		Location:      cfg.Location,
		KeptOnly:      cfg.KeptOnly,
		Remover:       remover,
		Contamination: cfg.OutlierContamination,
	}, mcol)
	if err != nil {
		return nil, fmt.Errorf("roaming: %w", err)
	}
	mcol.VehicleDays.Set(float64(len(days)))

	pickups := aggregate.PassengerPickups(prepared)
	mcol.Pickups.Set(float64(len(pickups)))

	yearDays := aggregate.YearDays(cfg.EmissionsYear, cfg.Location)
	cabs := aggregate.CombustionCabsPerMonth(cfg.FleetSize, 12, cfg.FleetReplacingRate)
	emissions, err := aggregate.AnnualEmissions(weekdays, yearDays, cabs, cfg.EmissionGramsPerMile)
	if err != nil {
		return nil, fmt.Errorf("emissions: %w", err)
	}
	mcol.EmissionsTon.WithLabelValues("mean").Set(emissions.CO2Ton)
	mcol.EmissionsTon.WithLabelValues("upper95").Set(emissions.Upper95CO2Ton)
	mcol.EmissionsTon.WithLabelValues("lower95").Set(emissions.Lower95CO2Ton)

	rep := report.New(cfg.City, time.Now())
	rep.VelocityThreshold = cfg.VelocityThreshold
	rep.Records = len(prepared)
	rep.Rejected = rejected
	rep.Vehicles = len(trace.Split(prepared))
	rep.VehicleDays = len(days)
	rep.Pickups = len(pickups)
	rep.SetWeekdays(weekdays)
	rep.Year = cfg.EmissionsYear
	rep.CabsPerMonth = cabs
	rep.Emissions = emissions
	return rep, nil
}

func loadRecords(ctx context.Context, cfg *config.Config, sqlDB *sql.DB) ([]trace.Record, error) {
	switch cfg.Source {
	case config.SourceFiles:
		recs, err := cabfile.ReadDir(cfg.CabDataDir, cfg.CabFileExt)
		if err != nil {
			return nil, fmt.Errorf("read cab files: %w", err)
		}
		log.Printf("read %d records from %s", len(recs), cfg.CabDataDir)
		// cab files list samples newest first
		return trace.Sort(recs), nil
	default:
		recs, err := db.FetchRecords(ctx, sqlDB, time.Time{}, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("fetch records: %w", err)
		}
		log.Printf("fetched %d records", len(recs))
		return recs, nil
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
