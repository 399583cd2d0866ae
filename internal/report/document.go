package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lacquerai/cortex/internal/bias"
	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/health"
	"github.com/lacquerai/cortex/internal/imbalance"
	"github.com/lacquerai/cortex/internal/profile"
)

// Section titles, in render order.
const (
	SectionSummary  = "Executive Summary"
	SectionHealth   = "Core Data Health"
	SectionTarget   = "Target Variable Analysis"
	SectionBias     = "Bias and Fairness"
	SectionModeling = "Diagnostic Modeling & Leakage"
	SectionProfiles = "Column Profiles"
)

const (
	duplicateRiskPct = 5.0
	topImportances   = 10
)

type tone int

const (
	toneInfo tone = iota
	toneSuccess
	toneWarning
	toneError
	toneMuted
)

// A block is one of note, fields, table, heading or prose.
type block interface{ isBlock() }

type note struct {
	tone tone
	text string
}

type field struct {
	label string
	value string
}

type fields []field

type table struct {
	headers []string
	rows    [][]string
}

type heading string

type prose string

func (note) isBlock()    {}
func (fields) isBlock()  {}
func (table) isBlock()   {}
func (heading) isBlock() {}
func (prose) isBlock()   {}

type section struct {
	title  string
	blocks []block
}

func (s *section) add(b ...block) { s.blocks = append(s.blocks, b...) }

type document struct {
	title    string
	subtitle string
	score    int
	band     string
	sections []section
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pct(v float64) string {
	return num(v) + "%"
}

func build(rep *engine.Report) document {
	doc := document{
		title: "CORTEX Dataset Diagnostic Report",
		score: rep.HealthScore,
	}
	var sub []string
	if rep.Dataset.Name != "" {
		sub = append(sub, rep.Dataset.Name)
	}
	sub = append(sub, fmt.Sprintf("target %s", rep.Target), rep.RunID)
	doc.subtitle = strings.Join(sub, " · ")
	if rep.Score.OK() {
		doc.band = rep.Score.Value.Band
	}

	doc.sections = []section{
		summarySection(rep),
		healthSection(rep),
		targetSection(rep),
		biasSection(rep),
		modelingSection(rep),
		profileSection(rep),
	}
	return doc
}

func summarySection(rep *engine.Report) section {
	s := section{title: SectionSummary}
	s.add(fields{
		{"Dataset Health Score", fmt.Sprintf("%d / 100", rep.HealthScore)},
		{"Rows", strconv.Itoa(rep.Dataset.Rows)},
		{"Columns", strconv.Itoa(rep.Dataset.Columns)},
	})

	status := toneWarning
	if rep.HealthScore >= 70 {
		status = toneSuccess
	}
	s.add(note{status, "Status: " + rep.Interpretation})

	if rep.Health.OK() && rep.Health.Value.Duplicates.DuplicatePercent > duplicateRiskPct {
		s.add(note{toneError, fmt.Sprintf("High Duplicate Risk: %s duplicate rows found.", pct(rep.Health.Value.Duplicates.DuplicatePercent))})
	} else if rep.Modeling.OK() && rep.Modeling.Value != nil && rep.Modeling.Value.Leaking() {
		s.add(note{toneError, "Model Leakage Detected: see " + SectionModeling + "."})
	}

	if rep.Narrative.OK() && rep.Narrative.Value != "" {
		s.add(prose(rep.Narrative.Value))
	}
	for _, f := range rep.Failures() {
		s.add(note{toneError, fmt.Sprintf("%s stage failed: %s", f.Stage, f.Message)})
	}
	return s
}

func healthSection(rep *engine.Report) section {
	s := section{title: SectionHealth}
	if !rep.Health.OK() {
		s.add(note{toneError, "Health analysis failed: " + rep.Health.Message()})
		return s
	}
	h := rep.Health.Value

	s.add(fields{
		{"Total Rows", strconv.Itoa(rep.Dataset.Rows)},
		{"Total Features", strconv.Itoa(rep.Dataset.Columns)},
	})
	s.add(note{toneInfo, fmt.Sprintf("Duplicate Rows Found: %d (%s)", h.Duplicates.DuplicateRows, pct(h.Duplicates.DuplicatePercent))})

	if len(h.Missing) == 0 {
		s.add(note{toneSuccess, "No critical missing data found."})
	} else {
		s.add(note{toneWarning, "Missing Data: columns with missing values"})
		t := table{headers: []string{"Column", "Missing", "Percent"}}
		for _, m := range h.Missing {
			t.rows = append(t.rows, []string{m.Column, strconv.Itoa(m.Count), pct(m.Percent)})
		}
		s.add(t)
	}

	s.add(heading("Feature Cardinality"))
	if len(h.Cardinality) == 0 {
		s.add(note{toneInfo, "No cardinality information available for this dataset."})
	} else {
		card := append([]health.Cardinality(nil), h.Cardinality...)
		sort.SliceStable(card, func(i, j int) bool { return card[i].Unique > card[j].Unique })
		t := table{headers: []string{"Column", "Unique Values", "Flag"}}
		for _, c := range card {
			t.rows = append(t.rows, []string{c.Column, strconv.Itoa(c.Unique), string(c.Flag)})
		}
		s.add(t)
	}

	if rep.Remediation.OK() {
		summary := rep.Remediation.Value
		s.add(heading("Remediation"))
		s.add(fields{
			{"Strategy", string(summary.Strategy)},
			{"Dropped Rows", strconv.Itoa(summary.DroppedRows)},
		})
		if len(summary.Fills) > 0 {
			t := table{headers: []string{"Column", "Method", "Value"}}
			for _, f := range summary.Fills {
				t.rows = append(t.rows, []string{f.Column, f.Method, f.Value})
			}
			s.add(t)
		}
	}
	return s
}

func targetSection(rep *engine.Report) section {
	s := section{title: fmt.Sprintf("%s: %s", SectionTarget, rep.Target)}
	if !rep.Imbalance.OK() {
		s.add(note{toneError, "Imbalance analysis failed: " + rep.Imbalance.Message()})
		return s
	}

	switch imb := rep.Imbalance.Value.(type) {
	case *imbalance.Regression:
		s.add(note{toneInfo, fmt.Sprintf("Regression Target (Numeric). Skewness: %s (%s Risk)", num(imb.Skewness), imb.SkewSeverity)})
		s.add(fields{{"Outliers", strconv.Itoa(imb.OutlierCount)}})
		s.add(note{toneWarning, imb.Warning})
	case *imbalance.Classification:
		s.add(note{toneInfo, fmt.Sprintf("Classification Target. Imbalance Ratio (Min/Max): %.4f (%s Risk)", imb.ImbalanceRatio, imb.Severity)})
		if imb.Severity != imbalance.SeverityLow {
			s.add(note{toneError, imb.Warning})
		}
		s.add(heading("Class Distribution"))
		t := table{headers: []string{"Class", "Count", "Percent"}}
		for _, c := range imb.Distribution {
			t.rows = append(t.rows, []string{c.Label, strconv.Itoa(c.Count), pct(c.Percent)})
		}
		s.add(t)
	case *imbalance.Degenerate:
		s.add(note{toneWarning, "Target cannot be profiled: " + imb.Status})
	case *imbalance.Critical:
		s.add(note{toneError, imb.Warning})
	}
	return s
}

func biasSection(rep *engine.Report) section {
	s := section{title: SectionBias}
	switch rep.Bias.Status() {
	case engine.StatusSkipped:
		s.add(note{toneInfo, rep.Bias.Skipped})
		return s
	case engine.StatusFailed:
		s.add(note{toneError, "Bias analysis failed: " + rep.Bias.Message()})
		return s
	}

	for _, attr := range rep.Bias.Value.Attributes {
		s.add(heading("Protected Attribute: " + attr.Column))
		if attr.Error != "" {
			s.add(note{toneError, attr.Error})
			continue
		}
		if r := attr.Representation; r != nil {
			switch r.Severity {
			case bias.SeveritySevere:
				s.add(note{toneError, fmt.Sprintf("%s Risk: %s", r.Severity, deref(r.Warning))})
			case bias.SeverityModerate:
				s.add(note{toneWarning, fmt.Sprintf("%s Risk: %s", r.Severity, deref(r.Warning))})
			default:
				s.add(note{toneSuccess, fmt.Sprintf("Representation is balanced (Min Group: %s)", pct(r.MinPercent))})
			}
		}
		switch out := attr.Outcome; {
		case out == nil:
		case out.Error != "":
			s.add(note{toneMuted, "Outcome Bias skipped: " + out.Error})
		case out.Severity != bias.SeverityLow:
			s.add(note{toneError, fmt.Sprintf("%s Outcome Bias: DIR = %s. %s", out.Severity, ratio(out.DIR), deref(out.Warning))})
		default:
			s.add(note{toneSuccess, fmt.Sprintf("Outcome is fair (DIR=%s). Rates for '%s' (%s) and '%s' (%s) are statistically similar.",
				ratio(out.DIR), out.PrivilegedGroup, num(out.PrivilegedRate), out.UnprivilegedGroup, num(out.UnprivilegedRate))})
		}
	}
	return s
}

func modelingSection(rep *engine.Report) section {
	s := section{title: SectionModeling}
	switch rep.Modeling.Status() {
	case engine.StatusSkipped:
		s.add(note{toneInfo, rep.Modeling.Skipped})
		return s
	case engine.StatusFailed:
		s.add(note{toneError, "Model Run Failed: " + rep.Modeling.Message()})
		return s
	}

	m := rep.Modeling.Value
	metric := "Accuracy"
	if rep.TargetIsNumeric() {
		metric = "R2"
	}
	scores := make([]string, len(m.CVScores))
	for i, v := range m.CVScores {
		scores[i] = num(v)
	}
	s.add(fields{
		{"Model", m.ModelType},
		{fmt.Sprintf("Mean CV Score (%s)", metric), num(m.MeanCVScore)},
		{"Fold Scores", strings.Join(scores, ", ")},
	})
	if m.LeakageWarning != nil {
		s.add(note{toneError, "LEAKAGE WARNING: " + *m.LeakageWarning})
	} else {
		s.add(note{toneSuccess, "Baseline performance suggests no severe data leakage."})
	}

	if len(m.FeatureImportances) > 0 {
		s.add(heading("Top Feature Importances"))
		t := table{headers: []string{"Feature", "Importance"}}
		for i, imp := range m.FeatureImportances {
			if i == topImportances {
				break
			}
			t.rows = append(t.rows, []string{imp.Feature, num(imp.Weight)})
		}
		s.add(t)
	}
	return s
}

func profileSection(rep *engine.Report) section {
	s := section{title: SectionProfiles}
	if !rep.Profile.OK() {
		s.add(note{toneMuted, "Profiling unavailable: " + rep.Profile.Message()})
		return s
	}
	p := rep.Profile.Value

	if len(p.Numeric) > 0 {
		s.add(heading("Numeric"))
		t := table{headers: []string{"Column", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max", "Skew"}}
		for _, n := range p.Numeric {
			t.rows = append(t.rows, []string{
				n.Column, strconv.Itoa(n.Count), num(n.Mean), num(n.Std), num(n.Min),
				num(n.P25), num(n.P50), num(n.P75), num(n.Max), num(n.Skewness),
			})
		}
		s.add(t)
	}
	if len(p.Categorical) > 0 {
		s.add(heading("Categorical"))
		t := table{headers: []string{"Column", "Unique", "Top Values", "High Cardinality"}}
		for _, c := range p.Categorical {
			t.rows = append(t.rows, []string{c.Column, strconv.Itoa(c.Unique), topValues(c.Top, 3), yesNo(c.HighCardinality)})
		}
		s.add(t)
	}
	if len(p.Datetime) > 0 {
		s.add(heading("Datetime"))
		t := table{headers: []string{"Column", "Count", "Min", "Max"}}
		for _, d := range p.Datetime {
			t.rows = append(t.rows, []string{d.Column, strconv.Itoa(d.Count), d.Min.Format("2006-01-02 15:04:05"), d.Max.Format("2006-01-02 15:04:05")})
		}
		s.add(t)
	}
	return s
}

func topValues(top []profile.Category, n int) string {
	var parts []string
	for i, c := range top {
		if i == n {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Value, c.Count))
	}
	return strings.Join(parts, ", ")
}

func ratio(r bias.Ratio) string {
	b, _ := r.MarshalJSON()
	return strings.Trim(string(b), `"`)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
