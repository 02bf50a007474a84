package s0_data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// CSVSource loads bar fixtures from a directory:
//
//	<dir>/bars/<SYMBOL>.csv      date,open,high,low,close,volume,amount
//	<dir>/instruments.csv        symbol,name,sector,market_cap   (optional)
//	<dir>/constituents.csv       index,symbol                    (optional)
type CSVSource struct {
	dir      string
	location *time.Location
}

// NewCSVSource creates a CSV bar source
func NewCSVSource(dir string, loc *time.Location) *CSVSource {
	return &CSVSource{dir: dir, location: loc}
}

// Load implements BarSource
func (s *CSVSource) Load(ctx context.Context, from, to time.Time) (*BarSet, error) {
	set := NewBarSet()

	files, err := filepath.Glob(filepath.Join(s.dir, "bars", "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob bar files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no bar files under %s", ErrNoData, filepath.Join(s.dir, "bars"))
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		symbol := strings.TrimSuffix(filepath.Base(f), ".csv")
		bars, err := s.readBars(f, from, to)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if len(bars) > 0 {
			set.Bars[symbol] = bars
		}
	}
	set.Sort()

	if err := s.readInstruments(set); err != nil {
		return nil, err
	}
	if err := s.readConstituents(set); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *CSVSource) readBars(path string, from, to time.Time) ([]contracts.Bar, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var bars []contracts.Bar
	for i, rec := range records {
		if len(rec) < 7 {
			return nil, fmt.Errorf("line %d: expected 7 columns, got %d", i+2, len(rec))
		}
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(rec[0]), s.loc())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		if day.Before(dateIn(from, s.loc())) || day.After(to) {
			continue
		}

		vals := make([]float64, 6)
		for j := range vals {
			vals[j], err = strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", i+2, j+2, err)
			}
		}
		bars = append(bars, contracts.Bar{
			Time:   day,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
			Amount: vals[5],
		})
	}
	return bars, nil
}

func (s *CSVSource) readInstruments(set *BarSet) error {
	records, err := readCSV(filepath.Join(s.dir, "instruments.csv"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read instruments: %w", err)
	}
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		inst := contracts.Instrument{Symbol: rec[0], Name: rec[1]}
		if len(rec) > 2 {
			inst.Sector = rec[2]
		}
		if len(rec) > 3 {
			inst.MarketCap, _ = strconv.ParseFloat(rec[3], 64)
		}
		set.Instruments[inst.Symbol] = inst
	}
	return nil
}

func (s *CSVSource) readConstituents(set *BarSet) error {
	records, err := readCSV(filepath.Join(s.dir, "constituents.csv"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read constituents: %w", err)
	}
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		set.Constituents[rec[0]] = append(set.Constituents[rec[0]], rec[1])
	}
	return nil
}

func (s *CSVSource) loc() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// readCSV returns all records after the header line
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return r.ReadAll()
}
