package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%city%'. Each
// import of a city's cab traces lands in its own database.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	// Fully qualified to the public schema (assumes we are connected to the 'postgres' database)
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&dbName); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no cab trace import found for city like %q", city)
		}
		return "", err
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return dbName.String, nil
}

// OpenForCity connects to the latest import database of city through the
// cluster at baseDSN. An empty city opens baseDSN itself.
func OpenForCity(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	if city == "" {
		conn, err := openAndPing(ctx, baseDSN)
		return conn, "", err
	}
	// Ensure we connect to the 'postgres' database to read latest_successful_imports
	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return nil, "", fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := openAndPing(ctx, rootDSN)
	if err != nil {
		return nil, "", fmt.Errorf("meta db: %w", err)
	}
	defer meta.Close()

	name, err := ResolveLatestImportDBName(ctx, meta, city)
	if err != nil {
		return nil, "", fmt.Errorf("resolve latest import for city %q: %w", city, err)
	}
	dsn, err := WithDBName(baseDSN, name)
	if err != nil {
		return nil, "", fmt.Errorf("compose DSN: %w", err)
	}
	conn, err := openAndPing(ctx, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("city db %q: %w", name, err)
	}
	return conn, name, nil
}

func openAndPing(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return conn, nil
}
