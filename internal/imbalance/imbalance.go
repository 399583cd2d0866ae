// Package imbalance profiles the target column: class balance for
// classification targets, skew and outliers for regression targets.
package imbalance

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/stats"
)

// Kind tags the variant held by a Report.
type Kind string

const (
	KindClassification Kind = "classification"
	KindRegression     Kind = "regression"
	KindDegenerate     Kind = "degenerate"
	KindCritical       Kind = "critical"
)

// Severity grades how strongly the target distribution threatens a model.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeveritySevere   Severity = "SEVERE"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

const (
	StatusSingleClass = "single class detected"
	StatusEmptyTarget = "target column is empty"
)

// Report is one of *Classification, *Regression, *Degenerate or *Critical.
type Report interface {
	Kind() Kind
	isReport()
}

// ClassCount is the frequency of one target label.
type ClassCount struct {
	Label   string  `json:"label" yaml:"label"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// Classification describes the class balance of a categorical target.
// Distribution is ordered from most to least frequent.
type Classification struct {
	Type           Kind         `json:"type" yaml:"type"`
	Distribution   []ClassCount `json:"distribution" yaml:"distribution"`
	MinorityClass  string       `json:"minority_class" yaml:"minority_class"`
	ImbalanceRatio float64      `json:"imbalance_ratio" yaml:"imbalance_ratio"`
	Severity       Severity     `json:"severity" yaml:"severity"`
	Warning        string       `json:"warning" yaml:"warning"`
}

// Regression describes the shape of a continuous target.
type Regression struct {
	Type         Kind     `json:"type" yaml:"type"`
	Skewness     float64  `json:"skewness" yaml:"skewness"`
	OutlierCount int      `json:"outlier_count" yaml:"outlier_count"`
	SkewSeverity Severity `json:"skew_severity" yaml:"skew_severity"`
	Warning      string   `json:"warning" yaml:"warning"`
}

// Degenerate marks a target that cannot be profiled.
type Degenerate struct {
	Type   Kind   `json:"type" yaml:"type"`
	Status string `json:"status" yaml:"status"`
}

// Critical replaces a report whose computation failed.
type Critical struct {
	Type           Kind     `json:"type" yaml:"type"`
	Severity       Severity `json:"severity" yaml:"severity"`
	ImbalanceRatio float64  `json:"imbalance_ratio" yaml:"imbalance_ratio"`
	Error          string   `json:"error" yaml:"error"`
	Warning        string   `json:"warning" yaml:"warning"`
}

func (*Classification) Kind() Kind { return KindClassification }
func (*Regression) Kind() Kind     { return KindRegression }
func (*Degenerate) Kind() Kind     { return KindDegenerate }
func (*Critical) Kind() Kind       { return KindCritical }

func (*Classification) isReport() {}
func (*Regression) isReport()     {}
func (*Degenerate) isReport()     {}
func (*Critical) isReport()       {}

// NewCritical builds the report used when analysis fails.
func NewCritical(err error) *Critical {
	return &Critical{
		Type:     KindCritical,
		Severity: SeverityCritical,
		Error:    err.Error(),
		Warning:  fmt.Sprintf("Target analysis failed: %v", err),
	}
}

// Analyze profiles the target. Numeric targets take the regression path,
// everything else the classification path. It never fails: errors and
// panics become a *Critical report.
func Analyze(d *dataset.Dataset, target string, targetIsNumeric bool) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("target", target).Str("panic", fmt.Sprint(r)).Msg("Imbalance analysis failed")
			report = NewCritical(fmt.Errorf("imbalance analysis panicked: %v", r))
		}
	}()

	col, ok := d.Column(target)
	if !ok {
		return NewCritical(fmt.Errorf("target column %q not found", target))
	}
	if targetIsNumeric {
		return AnalyzeRegression(col)
	}
	return AnalyzeClassification(col)
}

// AnalyzeClassification computes label frequencies and the minority to
// majority ratio. Percentages are over all rows, nulls included.
func AnalyzeClassification(col *dataset.Column) Report {
	counts := dataset.ValueCounts(col.Values)
	if len(counts) < 2 {
		return &Degenerate{Type: KindDegenerate, Status: StatusSingleClass}
	}

	total := len(col.Values)
	dist := make([]ClassCount, len(counts))
	for i, c := range counts {
		dist[i] = ClassCount{
			Label:   c.Value.String(),
			Count:   c.Count,
			Percent: stats.Round(stats.Percent(c.Count, total), 2),
		}
	}

	majority := counts[0]
	minority := dataset.Least(counts)
	ratio := stats.Round(float64(minority.Count)/float64(majority.Count), 4)

	severity := SeverityLow
	switch {
	case ratio <= 0.10:
		severity = SeveritySevere
	case ratio <= 0.25:
		severity = SeverityMedium
	}

	warning := fmt.Sprintf("Minority class ratio is %.2f%%. Severity: %s.", ratio*100, severity)
	if severity != SeverityLow {
		warning += " Model performance will likely suffer on the minority class."
	}

	return &Classification{
		Type:           KindClassification,
		Distribution:   dist,
		MinorityClass:  minority.Value.String(),
		ImbalanceRatio: ratio,
		Severity:       severity,
		Warning:        warning,
	}
}

// AnalyzeRegression computes skewness and the IQR outlier count of the
// non-null values.
func AnalyzeRegression(col *dataset.Column) Report {
	values := col.Floats()
	if len(values) == 0 {
		return &Degenerate{Type: KindDegenerate, Status: StatusEmptyTarget}
	}

	skew := stats.Round(stats.Skewness(values), 2)
	severity := SeverityLow
	switch {
	case math.Abs(skew) > 1.0:
		severity = SeverityHigh
	case math.Abs(skew) > 0.5:
		severity = SeverityMedium
	}

	warning := fmt.Sprintf("Target distribution skewness is %.2f (%s).", skew, severity)
	if severity == SeverityHigh {
		warning += " HIGH skew suggests considering log/root transformation."
	}

	return &Regression{
		Type:         KindRegression,
		Skewness:     skew,
		OutlierCount: stats.OutliersIQR(values),
		SkewSeverity: severity,
		Warning:      warning,
	}
}
