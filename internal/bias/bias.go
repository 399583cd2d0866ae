// Package bias measures representation and outcome disparity across
// protected attributes.
package bias

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/stats"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

const (
	// Disparate impact outside [dirLower, dirUpper] is flagged.
	dirLower = 0.80
	dirUpper = 1.25

	severeShare   = 10.0
	moderateShare = 20.0
)

// Ratio is a disparate impact ratio. It may be +Inf, which JSON encodes as
// the string "+Inf".
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(r), 1) {
		return []byte(`"+Inf"`), nil
	}
	return json.Marshal(float64(r))
}

// JSONSchema allows the "+Inf" string alongside numbers.
func (Ratio) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
		{Type: "number"},
		{Type: "string", Const: "+Inf"},
	}}
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == `"+Inf"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Share is one group's percentage of the non-null rows.
type Share struct {
	Group   string  `json:"group" yaml:"group"`
	Percent float64 `json:"percent" yaml:"percent"`
}

type Representation struct {
	Distribution []Share  `json:"distribution_percent" yaml:"distribution_percent"`
	MinGroup     string   `json:"min_group" yaml:"min_group"`
	MinPercent   float64  `json:"min_percent" yaml:"min_percent"`
	Severity     Severity `json:"severity" yaml:"severity"`
	Warning      *string  `json:"warning" yaml:"warning"`
}

type Outcome struct {
	Policy            string   `json:"policy,omitempty" yaml:"policy,omitempty"`
	PrivilegedGroup   string   `json:"privileged_group,omitempty" yaml:"privileged_group,omitempty"`
	UnprivilegedGroup string   `json:"unprivileged_group,omitempty" yaml:"unprivileged_group,omitempty"`
	PrivilegedRate    float64  `json:"privileged_rate" yaml:"privileged_rate"`
	UnprivilegedRate  float64  `json:"unprivileged_rate" yaml:"unprivileged_rate"`
	DIR               Ratio    `json:"dir_ratio" yaml:"dir_ratio"`
	Severity          Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Warning           *string  `json:"warning" yaml:"warning"`
	Error             string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Attribute is the analysis of one protected column. Outcome is nil when
// the target is not binary. Error is set when the column could not be
// analyzed at all.
type Attribute struct {
	Column         string          `json:"column" yaml:"column"`
	Representation *Representation `json:"representation,omitempty" yaml:"representation,omitempty"`
	Outcome        *Outcome        `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
}

type Report struct {
	PositiveLabel string      `json:"positive_label,omitempty" yaml:"positive_label,omitempty"`
	Attributes    []Attribute `json:"attributes" yaml:"attributes"`
}

// Lookup returns the analysis of a protected column.
func (r *Report) Lookup(column string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Column == column {
			return a, true
		}
	}
	return Attribute{}, false
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPolicy replaces the privilege policy.
func WithPolicy(p PrivilegePolicy) Option {
	return func(a *Analyzer) {
		a.policy = p
	}
}

// WithPositiveLabel fixes the target label counted as a positive outcome.
// A label matches a target value by display form or, for numeric targets,
// by numeric value, so "1.0" matches a numeric 1.
func WithPositiveLabel(label string) Option {
	return func(a *Analyzer) {
		a.positiveLabel = label
	}
}

type Analyzer struct {
	policy        PrivilegePolicy
	positiveLabel string
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{policy: SizePolicy{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze inspects each protected column independently; a failure in one
// column is recorded on that column and does not affect the others.
func (a *Analyzer) Analyze(d *dataset.Dataset, target string, protected []string) *Report {
	report := &Report{Attributes: make([]Attribute, 0, len(protected))}

	var positive, labelErr string
	binary := false
	if tc, ok := d.Column(target); ok {
		if counts := dataset.ValueCounts(tc.Values); len(counts) == 2 {
			binary = true
			if a.positiveLabel == "" {
				positive = defaultPositive(counts[0].Value, counts[1].Value)
			} else if label, ok := resolvePositive(a.positiveLabel, counts[0].Value, counts[1].Value); ok {
				positive = label
			} else {
				positive = a.positiveLabel
				labelErr = fmt.Sprintf("positive label %q is not a target value", a.positiveLabel)
				log.Warn().Str("target", target).Str("label", a.positiveLabel).Msg("Positive label not found in target")
			}
			report.PositiveLabel = positive
		}
	}

	for _, column := range protected {
		attr := a.analyzeColumn(d, target, column, binary, positive)
		if labelErr != "" && attr.Outcome != nil {
			attr.Outcome = &Outcome{Error: labelErr}
		}
		report.Attributes = append(report.Attributes, attr)
	}
	return report
}

// resolvePositive maps a configured label onto one of the two target values
// and returns that value's display form.
func resolvePositive(label string, values ...dataset.Value) (string, bool) {
	for _, v := range values {
		if v.String() == label {
			return label, true
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil {
		return "", false
	}
	for _, v := range values {
		if v.Kind() == dataset.KindNumber && v.Float() == f {
			return v.String(), true
		}
	}
	return "", false
}

func (a *Analyzer) analyzeColumn(d *dataset.Dataset, target, column string, binary bool, positive string) (attr Attribute) {
	attr.Column = column
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("column", column).Str("panic", fmt.Sprint(r)).Msg("Bias analysis failed")
			attr = Attribute{Column: column, Error: fmt.Sprintf("bias analysis failed: %v", r)}
		}
	}()

	col, ok := d.Column(column)
	if !ok {
		attr.Error = fmt.Sprintf("column %q not found", column)
		return attr
	}

	rep, err := representation(col)
	if err != nil {
		attr.Error = err.Error()
		return attr
	}
	attr.Representation = rep

	if binary && column != target && col.Distinct() >= 2 {
		tc, _ := d.Column(target)
		attr.Outcome = a.outcome(col, tc, positive)
	}
	return attr
}

func representation(col *dataset.Column) (*Representation, error) {
	counts := dataset.ValueCounts(col.Values)
	if len(counts) == 0 {
		return nil, fmt.Errorf("column %q has no values", col.Name)
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	shares := make([]Share, len(counts))
	for i, c := range counts {
		shares[i] = Share{
			Group:   c.Value.String(),
			Percent: stats.Round(stats.Round(float64(c.Count)/float64(total), 4)*100, 2),
		}
	}

	least := dataset.Least(counts)
	rep := &Representation{
		Distribution: shares,
		MinGroup:     least.Value.String(),
		Severity:     SeverityLow,
	}
	for _, s := range shares {
		if s.Group == rep.MinGroup {
			rep.MinPercent = s.Percent
		}
	}

	switch {
	case rep.MinPercent < severeShare:
		rep.Severity = SeveritySevere
		rep.Warning = warning("Representation bias: Group '%s' is severely underrepresented, making up only %.2f%% of the dataset. This increases the risk of poor generalization.", rep.MinGroup, rep.MinPercent)
	case rep.MinPercent <= moderateShare:
		rep.Severity = SeverityModerate
		rep.Warning = warning("Representation bias: Group '%s' is underrepresented (%.2f%%). Consider sampling methods to increase representation.", rep.MinGroup, rep.MinPercent)
	}
	return rep, nil
}

func (a *Analyzer) outcome(col, target *dataset.Column, positive string) *Outcome {
	index := make(map[string]int)
	var groups []Group
	for i, v := range col.Values {
		t := target.Values[i]
		if v.IsNull() || t.IsNull() {
			continue
		}
		k := v.Key()
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, Group{Label: v.String()})
		}
		groups[gi].Size++
		if t.String() == positive {
			groups[gi].Positives++
		}
	}
	if len(groups) < 2 {
		return &Outcome{Error: fmt.Sprintf("Not enough groups for DIR in %s", col.Name)}
	}
	sortBySize(groups)

	priv, unpriv := a.policy.Select(groups)
	privRate, unprivRate := priv.Rate(), unpriv.Rate()

	var dir float64
	switch {
	case privRate == 0 && unprivRate > 0:
		dir = math.Inf(1)
	case privRate == 0:
		dir = 1.0
	default:
		dir = unprivRate / privRate
	}

	out := &Outcome{
		Policy:            a.policy.Name(),
		PrivilegedGroup:   priv.Label,
		UnprivilegedGroup: unpriv.Label,
		PrivilegedRate:    stats.Round(privRate, 4),
		UnprivilegedRate:  stats.Round(unprivRate, 4),
		DIR:               Ratio(stats.Round(dir, 4)),
		Severity:          SeverityLow,
	}
	switch {
	case dir < dirLower:
		out.Severity = SeveritySevere
		out.Warning = warning("Outcome bias detected against '%s'. Unprivileged group's success rate is %.2fx that of the privileged group. This is considered statistically disparate impact.", unpriv.Label, dir)
	case dir > dirUpper:
		out.Severity = SeverityModerate
		out.Warning = warning("Outcome bias detected in favor of '%s'. Unprivileged group's success rate is %.2fx that of the privileged group.", unpriv.Label, dir)
	}
	return out
}

// defaultPositive picks the numerically larger, or lexically later, label.
func defaultPositive(a, b dataset.Value) string {
	if a.Less(b) {
		return b.String()
	}
	return a.String()
}

func sortBySize(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Size > groups[j].Size })
}

func warning(format string, args ...any) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}
