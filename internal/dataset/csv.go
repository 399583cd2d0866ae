package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// Load reads a CSV file from disk.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses a CSV stream with a header row. Header names are trimmed.
// An input without data rows, or with repeated header names, is rejected
// with a MalformedInputError.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Reason: ReasonEmpty}
	}
	if err != nil {
		return nil, &MalformedInputError{Reason: ReasonUnparseable, Err: err}
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	if dups := duplicates(names); len(dups) > 0 {
		return nil, &MalformedInputError{Reason: ReasonDuplicateColumns, Names: dups}
	}

	raw := make([][]string, len(names))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedInputError{Reason: ReasonUnparseable, Err: err}
		}
		for i := range names {
			raw[i] = append(raw[i], record[i])
		}
	}
	if len(names) == 0 || len(raw[0]) == 0 {
		return nil, &MalformedInputError{Reason: ReasonEmpty}
	}

	columns := make([]*Column, len(names))
	for i, name := range names {
		columns[i] = parseColumn(name, raw[i])
	}
	return New(columns...)
}

// WriteCSV writes the dataset with a header row. Nulls are written as
// empty cells.
func WriteCSV(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.Columns()); err != nil {
		return err
	}
	record := make([]string, d.Width())
	for i := 0; i < d.Len(); i++ {
		for j, v := range d.Row(i) {
			record[j] = v.String()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var dups []string
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			dups = append(dups, n)
		}
	}
	return dups
}

// parseColumn types a column from its raw cells: numeric when every
// non-null cell is a finite number, datetime when every non-null cell is a
// timestamp, text otherwise.
func parseColumn(name string, cells []string) *Column {
	numbers := make([]Value, len(cells))
	times := make([]Value, len(cells))
	isNumeric, isTime, seen := true, true, false

	for i, cell := range cells {
		s := strings.TrimSpace(cell)
		if _, null := nullTokens[strings.ToLower(s)]; null {
			continue
		}
		seen = true
		if isNumeric {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				isNumeric = false
			} else {
				numbers[i] = Number(f)
			}
		}
		if isTime && !isNumeric {
			t, ok := parseTime(s)
			if !ok {
				isTime = false
			} else {
				times[i] = Time(t)
			}
		}
		if !isNumeric && !isTime {
			break
		}
	}

	switch {
	case !seen:
		return &Column{Name: name, Type: TypeEmpty, Values: make([]Value, len(cells))}
	case isNumeric:
		return &Column{Name: name, Type: TypeNumeric, Values: numbers}
	case isTime:
		// cells seen before numeric parsing failed still need a time value
		for i, cell := range cells {
			s := strings.TrimSpace(cell)
			if _, null := nullTokens[strings.ToLower(s)]; null || !times[i].IsNull() {
				continue
			}
			t, ok := parseTime(s)
			if !ok {
				return textColumn(name, cells)
			}
			times[i] = Time(t)
		}
		return &Column{Name: name, Type: TypeDatetime, Values: times}
	default:
		return textColumn(name, cells)
	}
}

func textColumn(name string, cells []string) *Column {
	values := make([]Value, len(cells))
	for i, cell := range cells {
		s := strings.TrimSpace(cell)
		if _, null := nullTokens[strings.ToLower(s)]; null {
			continue
		}
		values[i] = Text(cell)
	}
	return &Column{Name: name, Type: TypeText, Values: values}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
