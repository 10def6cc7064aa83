package profiles

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// indexDateLayout is the date format of the Argo global profile index.
const indexDateLayout = "20060102150405"

// ReadIndex parses a profile index in the GDAC CSV format. Lines starting
// with # are comments; the first remaining line is the header, which must
// name at least the file and date columns. Rows with an empty date are
// skipped.
func ReadIndex(r io.Reader) ([]Profile, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	fileCol, dateCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "file":
			fileCol = i
		case "date":
			dateCol = i
		}
	}
	if fileCol < 0 || dateCol < 0 {
		return nil, fmt.Errorf("index header %v lacks file or date column", header)
	}

	var profiles []Profile
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
		if len(rec) <= max(fileCol, dateCol) || rec[dateCol] == "" {
			continue
		}

		date, err := time.Parse(indexDateLayout, rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", rec[dateCol], rec[fileCol], err)
		}
		wmo, err := ParseWMO(rec[fileCol])
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, Profile{
			File:  rec[fileCol],
			WMO:   wmo,
			Cycle: ParseCycle(rec[fileCol]),
			Date:  date,
		})
	}
	return profiles, nil
}
