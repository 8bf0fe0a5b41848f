package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Sources of cab traces.
const (
	SourceDB    = "db"
	SourceFiles = "files"
)

type Config struct {
	Source     string
	CabDataDir string
	CabFileExt string

	DatabaseURL    string
	City           string
	PersistResults bool

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr    string
	MetricsPushURL string

	Location *time.Location

	VelocityThreshold         float64
	CarryAnchorAcrossVehicles bool
	KeptOnly                  bool
	OutlierFilter             string
	OutlierContamination      float64

	EmissionsYear        int
	FleetSize            int
	FleetReplacingRate   float64
	EmissionGramsPerMile float64

	Workers int
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.Source = strings.ToLower(getenvDefault("SOURCE", SourceDB))
	switch cfg.Source {
	case SourceDB:
	case SourceFiles:
		cfg.CabDataDir = os.Getenv("CAB_DATA_DIR")
		if cfg.CabDataDir == "" {
			return nil, errors.New("CAB_DATA_DIR must be set when SOURCE=files")
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE: %q", cfg.Source)
	}
	cfg.CabFileExt = getenvDefault("CAB_FILE_EXT", ".txt")

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	cfg.PersistResults = parseBool(os.Getenv("PERSIST_RESULTS"), false)

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	needDB := cfg.Source == SourceDB || cfg.PersistResults
	if dsn == "" && needDB {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && cfg.City != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// Empty disables publishing the report.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "roaming")

	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"), false)

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	// Pushgateway URL; metrics are pushed once the batch finishes.
	cfg.MetricsPushURL = os.Getenv("METRICS_PUSH_URL")

	// Time zone used to cut calendar days
	tzName := getenvDefault("TZ", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	if cfg.VelocityThreshold, err = positiveFloat("VELOCITY_THRESHOLD", 85); err != nil {
		return nil, err
	}
	cfg.CarryAnchorAcrossVehicles = parseBool(os.Getenv("FILTER_CARRY_ANCHOR"), false)
	cfg.KeptOnly = parseBool(os.Getenv("AGGREGATE_KEPT_ONLY"), true)

	cfg.OutlierFilter = strings.ToLower(getenvDefault("OUTLIER_FILTER", "none"))
	switch cfg.OutlierFilter {
	case "none", "nop", "lof":
	default:
		return nil, fmt.Errorf("invalid OUTLIER_FILTER: %q", cfg.OutlierFilter)
	}
	cfg.OutlierContamination = 0.01
	if v := os.Getenv("OUTLIER_CONTAMINATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0 && f < 1) {
			return nil, fmt.Errorf("invalid OUTLIER_CONTAMINATION: %q", v)
		}
		cfg.OutlierContamination = f
	}

	cfg.EmissionsYear = time.Now().In(loc).Year()
	if v := os.Getenv("EMISSIONS_YEAR"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return nil, fmt.Errorf("invalid EMISSIONS_YEAR: %q", v)
		}
		cfg.EmissionsYear = y
	}

	cfg.FleetSize = 500
	if v := os.Getenv("FLEET_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FLEET_SIZE: %q", v)
		}
		cfg.FleetSize = n
	}

	if v := os.Getenv("FLEET_REPLACING_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f >= 0 && f <= 1) {
			return nil, fmt.Errorf("invalid FLEET_REPLACING_RATE: %q", v)
		}
		cfg.FleetReplacingRate = f
	}

	if cfg.EmissionGramsPerMile, err = positiveFloat("EMISSION_GRAMS_PER_MILE", 404); err != nil {
		return nil, err
	}

	cfg.Workers = runtime.NumCPU()
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	return cfg, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
