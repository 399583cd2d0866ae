// Package schema classifies dataset columns for the downstream analyzers.
package schema

import (
	"fmt"

	"github.com/lacquerai/cortex/internal/dataset"
)

// Type is the primary category of a column.
type Type string

const (
	Numeric     Type = "numeric"
	Categorical Type = "categorical"
	Datetime    Type = "datetime"
)

// Column describes one classified column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
	// Binary is set for numeric columns with exactly two distinct
	// non-null values.
	Binary bool `json:"binary_categorical" yaml:"binary_categorical"`
}

// Schema is the classification of every feature column plus the target.
// Binary columns appear in Numeric and are additionally listed in
// BinaryCategorical.
type Schema struct {
	Numeric           []string `json:"numeric" yaml:"numeric"`
	Categorical       []string `json:"categorical" yaml:"categorical"`
	Datetime          []string `json:"datetime" yaml:"datetime"`
	BinaryCategorical []string `json:"binary_categorical" yaml:"binary_categorical"`
	Target            Column   `json:"target" yaml:"target"`
}

// InvalidTargetError is returned when the target column does not exist.
type InvalidTargetError struct {
	Column string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("target column %q not found in dataset", e.Column)
}

// Infer classifies every column of d. The target is classified by the same
// rule and recorded separately.
func Infer(d *dataset.Dataset, target string) (*Schema, error) {
	tc, ok := d.Column(target)
	if !ok {
		return nil, &InvalidTargetError{Column: target}
	}

	s := &Schema{
		Numeric:           []string{},
		Categorical:       []string{},
		Datetime:          []string{},
		BinaryCategorical: []string{},
		Target:            Classify(tc),
	}

	for _, name := range d.Columns() {
		if name == target {
			continue
		}
		col, _ := d.Column(name)
		info := Classify(col)
		switch info.Type {
		case Numeric:
			s.Numeric = append(s.Numeric, name)
			if info.Binary {
				s.BinaryCategorical = append(s.BinaryCategorical, name)
			}
		case Datetime:
			s.Datetime = append(s.Datetime, name)
		default:
			s.Categorical = append(s.Categorical, name)
		}
	}
	return s, nil
}

// Classify applies the column rule to a single column.
func Classify(c *dataset.Column) Column {
	switch c.Type {
	case dataset.TypeDatetime:
		return Column{Name: c.Name, Type: Datetime}
	case dataset.TypeNumeric:
		return Column{Name: c.Name, Type: Numeric, Binary: c.Distinct() == 2}
	default:
		return Column{Name: c.Name, Type: Categorical}
	}
}

// Lookup returns the classification of a feature or the target.
func (s *Schema) Lookup(name string) (Column, bool) {
	if name == s.Target.Name {
		return s.Target, true
	}
	for _, n := range s.Numeric {
		if n == name {
			return Column{Name: n, Type: Numeric, Binary: contains(s.BinaryCategorical, n)}, true
		}
	}
	if contains(s.Categorical, name) {
		return Column{Name: name, Type: Categorical}, true
	}
	if contains(s.Datetime, name) {
		return Column{Name: name, Type: Datetime}, true
	}
	return Column{}, false
}

// Features returns every non-target column name grouped by category.
func (s *Schema) Features() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Categorical)+len(s.Datetime))
	out = append(out, s.Numeric...)
	out = append(out, s.Categorical...)
	return append(out, s.Datetime...)
}

// TargetIsNumeric reports whether the target should be treated as a
// continuous quantity. Numeric targets with two values are classification
// targets.
func (s *Schema) TargetIsNumeric() bool {
	return s.Target.Type == Numeric && !s.Target.Binary
}

// IsClassification is the inverse of TargetIsNumeric.
func (s *Schema) IsClassification() bool {
	return !s.TargetIsNumeric()
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
