// Package cabfile reads raw cab trace files. Each file holds the samples of
// one cab, named after it, one sample per line:
//
//	latitude longitude occupancy unix_time
package cabfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cab-roaming/internal/trace"
)

// Parse reads the samples of cab vehicleID from r in file order.
func Parse(r io.Reader, vehicleID string) ([]trace.Record, error) {
	var recs []trace.Record
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: want 4 fields, got %d: %w", line, len(fields), trace.ErrMalformedInput)
		}
		lat, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, trace.ErrMalformedInput)
		}
		lon, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, trace.ErrMalformedInput)
		}
		occ, err := strconv.Atoi(fields[2])
		if err != nil || (occ != 0 && occ != 1) {
			return nil, fmt.Errorf("line %d: occupancy %q: %w", line, fields[2], trace.ErrMalformedInput)
		}
		unix, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: time %q: %w", line, fields[3], trace.ErrMalformedInput)
		}
		r := trace.Record{
			VehicleID: vehicleID,
			Lat:       lat,
			Lon:       lon,
			Occupied:  occ == 1,
			Time:      time.Unix(unix, 0).UTC(),
		}
		if err := trace.CheckRecord(len(recs), r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile parses path, using the file name without ext as the cab id.
func ReadFile(path string) ([]trace.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	recs, err := Parse(f, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// ReadDir concatenates every file in dir ending with ext, in file name order.
func ReadDir(dir, ext string) ([]trace.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []trace.Record
	for _, name := range names {
		recs, err := ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}
