package rules

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"plate-gate/internal/domain/anpr"
)

// Files lists the dataset CSV paths. Empty paths are skipped.
type Files struct {
	Allowed   string
	Denied    string
	Watchlist string
	Ignored   string
}

// LoadCSV reads every configured dataset. The first column is the plate; the
// watchlist may carry a group in the second column. Missing files yield
// empty datasets.
func LoadCSV(files Files) ([]Entry, error) {
	sources := []struct {
		path     string
		category anpr.Category
	}{
		{files.Ignored, anpr.CategoryIgnored},
		{files.Allowed, anpr.CategoryAllowed},
		{files.Denied, anpr.CategoryDenied},
		{files.Watchlist, anpr.CategoryWatchlist},
	}

	var entries []Entry
	for _, src := range sources {
		if src.path == "" {
			continue
		}
		got, err := readCSVFile(src.path, src.category)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}
	return entries, nil
}

func readCSVFile(path string, category anpr.Category) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s dataset: %w", category, err)
	}
	defer f.Close()

	entries, err := ReadCSV(f, category)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s dataset %s: %w", category, path, err)
	}
	return entries, nil
}

// ReadCSV parses dataset rows from r.
func ReadCSV(r io.Reader, category anpr.Category) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		e := Entry{Plate: row[0], Category: category}
		if category == anpr.CategoryWatchlist && len(row) > 1 {
			e.Group = strings.TrimSpace(row[1])
		}
		entries = append(entries, e)
	}
	return entries, nil
}
