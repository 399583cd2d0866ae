// Package health computes missingness, duplication and cardinality
// statistics on a raw dataset.
package health

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/stats"
)

// CardinalityFlag classifies a column's distinct-value count.
type CardinalityFlag string

const (
	FlagHighPotentialID CardinalityFlag = "high-potential-id"
	FlagLowMedium       CardinalityFlag = "low-medium"

	// idRatio is the distinct/rows fraction above which a column looks
	// like an identifier.
	idRatio = 0.9
)

type Missing struct {
	Column  string  `json:"column" yaml:"column"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

type Duplicates struct {
	TotalRows        int     `json:"total_rows" yaml:"total_rows"`
	DuplicateRows    int     `json:"duplicate_rows" yaml:"duplicate_rows"`
	DuplicatePercent float64 `json:"duplicate_percent" yaml:"duplicate_percent"`
}

type Cardinality struct {
	Column string          `json:"column" yaml:"column"`
	Unique int             `json:"unique" yaml:"unique"`
	Flag   CardinalityFlag `json:"flag" yaml:"flag"`
}

// Report is the health summary of a dataset. Missing lists only columns
// with at least one null.
type Report struct {
	Missing     []Missing     `json:"missing" yaml:"missing"`
	Duplicates  Duplicates    `json:"duplicates" yaml:"duplicates"`
	Cardinality []Cardinality `json:"cardinality" yaml:"cardinality"`
}

// Empty returns the report used when analysis is impossible.
func Empty() Report {
	return Report{Missing: []Missing{}, Cardinality: []Cardinality{}}
}

// MissingPercent returns the missing percent recorded for a column, 0 when
// the column has no nulls.
func (r Report) MissingPercent(column string) float64 {
	for _, m := range r.Missing {
		if m.Column == column {
			return m.Percent
		}
	}
	return 0
}

// Analyze computes the health report. It never fails: any internal error
// yields Empty.
func Analyze(d *dataset.Dataset) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("panic", fmt.Sprint(r)).Msg("Health analysis failed, using empty report")
			report = Empty()
		}
	}()

	report = Empty()
	rows := d.Len()

	for _, name := range d.Columns() {
		col, _ := d.Column(name)

		if n := col.NullCount(); n > 0 {
			report.Missing = append(report.Missing, Missing{
				Column:  name,
				Count:   n,
				Percent: stats.Round(stats.Percent(n, rows), 2),
			})
		}

		unique := col.Distinct()
		flag := FlagLowMedium
		if float64(unique) > idRatio*float64(rows) {
			flag = FlagHighPotentialID
		}
		report.Cardinality = append(report.Cardinality, Cardinality{Column: name, Unique: unique, Flag: flag})
	}

	dups := CountDuplicates(d)
	report.Duplicates = Duplicates{
		TotalRows:        rows,
		DuplicateRows:    dups,
		DuplicatePercent: stats.Round(stats.Percent(dups, rows), 2),
	}
	return report
}

// CountDuplicates counts rows identical to an earlier row across every
// column. Nulls compare equal to nulls.
func CountDuplicates(d *dataset.Dataset) int {
	seen := make(map[string]struct{}, d.Len())
	dups := 0
	var b strings.Builder
	for i := 0; i < d.Len(); i++ {
		b.Reset()
		for _, v := range d.Row(i) {
			// length-prefixed so no cell content can shift a boundary
			k := v.Key()
			b.WriteString(strconv.Itoa(len(k)))
			b.WriteByte(':')
			b.WriteString(k)
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}
