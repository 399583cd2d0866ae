package engine

import (
	"fmt"
	"time"

	"github.com/lacquerai/cortex/internal/bias"
	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/health"
	"github.com/lacquerai/cortex/internal/imbalance"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/narrate"
	"github.com/lacquerai/cortex/internal/profile"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/schema"
	"github.com/lacquerai/cortex/internal/score"
)

// DatasetInfo describes the analyzed input.
type DatasetInfo struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Rows    int    `json:"rows" yaml:"rows"`
	Columns int    `json:"columns" yaml:"columns"`
}

// Report is the composite result of a diagnostic run. Every stage slot is
// filled, either with its value or with the reason it has none.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Dataset    DatasetInfo   `json:"dataset" yaml:"dataset"`
	Target     string        `json:"target" yaml:"target"`
	Protected  []string      `json:"protected" yaml:"protected"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`

	// HealthScore is zero when scoring failed.
	HealthScore    int    `json:"health_score" yaml:"health_score"`
	Interpretation string `json:"interpretation" yaml:"interpretation"`

	Schema      Result[*schema.Schema]     `json:"schema" yaml:"schema"`
	Remediation Result[*remediate.Summary] `json:"remediation" yaml:"remediation"`
	Health      Result[health.Report]      `json:"health" yaml:"health"`
	Imbalance   Result[imbalance.Report]   `json:"imbalance" yaml:"imbalance"`
	Bias        Result[*bias.Report]       `json:"bias" yaml:"bias"`
	Profile     Result[*profile.Profile]   `json:"profile" yaml:"profile"`
	Modeling    Result[*modeling.Result]   `json:"modeling" yaml:"modeling"`
	Score       Result[score.Result]       `json:"score" yaml:"score"`
	Narrative   Result[string]             `json:"narrative" yaml:"narrative"`

	healed *dataset.Dataset
}

// Healed returns the remediated dataset, or the input when remediation
// failed.
func (r *Report) Healed() *dataset.Dataset {
	return r.healed
}

// TargetIsNumeric reports whether the target was analyzed as a regression
// target.
func (r *Report) TargetIsNumeric() bool {
	_, ok := r.Imbalance.Value.(*imbalance.Regression)
	return ok
}

// StageStatus summarizes one stage of a run.
type StageStatus struct {
	Stage   Stage  `json:"stage" yaml:"stage"`
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Stages returns the outcome of every stage in pipeline order.
func (r *Report) Stages() []StageStatus {
	entry := func(s Stage, status Status, msg string) StageStatus {
		return StageStatus{Stage: s, Status: status, Message: msg}
	}
	return []StageStatus{
		entry(StageSchema, r.Schema.Status(), r.Schema.Message()),
		entry(StageRemediation, r.Remediation.Status(), r.Remediation.Message()),
		entry(StageHealth, r.Health.Status(), r.Health.Message()),
		entry(StageImbalance, r.Imbalance.Status(), r.Imbalance.Message()),
		entry(StageBias, r.Bias.Status(), r.Bias.Message()),
		entry(StageProfile, r.Profile.Status(), r.Profile.Message()),
		entry(StageModeling, r.Modeling.Status(), r.Modeling.Message()),
		entry(StageScore, r.Score.Status(), r.Score.Message()),
		entry(StageNarrative, r.Narrative.Status(), r.Narrative.Message()),
	}
}

// Failures returns the stages that failed.
func (r *Report) Failures() []StageStatus {
	var out []StageStatus
	for _, s := range r.Stages() {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Facts condenses the report into the findings an executive summary is
// written from.
func (r *Report) Facts() narrate.Facts {
	f := narrate.Facts{
		Dataset:        r.Dataset.Name,
		Rows:           r.Dataset.Rows,
		Columns:        r.Dataset.Columns,
		Target:         r.Target,
		Score:          r.HealthScore,
		Interpretation: r.Interpretation,
	}
	if r.Score.OK() {
		f.Band = r.Score.Value.Band
	}

	if r.Health.OK() {
		h := r.Health.Value
		for _, m := range h.Missing {
			if m.Count > 0 {
				f.Findings = append(f.Findings, fmt.Sprintf("%s is %.1f%% missing", m.Column, m.Percent))
			}
		}
		if h.Duplicates.DuplicateRows > 0 {
			f.Findings = append(f.Findings, fmt.Sprintf("%d duplicate rows (%.2f%%)", h.Duplicates.DuplicateRows, h.Duplicates.DuplicatePercent))
		}
		for _, c := range h.Cardinality {
			if c.Flag == health.FlagHighPotentialID {
				f.Findings = append(f.Findings, fmt.Sprintf("%s looks like an identifier (%d unique values)", c.Column, c.Unique))
			}
		}
	}

	switch imb := r.Imbalance.Value.(type) {
	case *imbalance.Classification:
		if imb.Severity != imbalance.SeverityLow {
			f.Findings = append(f.Findings, imb.Warning)
		}
	case *imbalance.Regression:
		if imb.SkewSeverity != imbalance.SeverityLow {
			f.Findings = append(f.Findings, imb.Warning)
		}
	case *imbalance.Degenerate:
		f.Findings = append(f.Findings, "target: "+imb.Status)
	}

	if r.Bias.OK() {
		for _, a := range r.Bias.Value.Attributes {
			if a.Representation != nil && a.Representation.Warning != nil {
				f.Findings = append(f.Findings, *a.Representation.Warning)
			}
			if a.Outcome != nil && a.Outcome.Warning != nil {
				f.Findings = append(f.Findings, *a.Outcome.Warning)
			}
		}
	}

	if r.Modeling.OK() && r.Modeling.Value != nil {
		m := r.Modeling.Value
		f.Findings = append(f.Findings, fmt.Sprintf("baseline %s model scored %.4f in cross-validation", m.ModelType, m.MeanCVScore))
		if m.LeakageWarning != nil {
			f.Findings = append(f.Findings, *m.LeakageWarning)
		}
	}

	for _, s := range r.Failures() {
		f.Findings = append(f.Findings, fmt.Sprintf("%s stage failed: %s", s.Stage, s.Message))
	}
	return f
}
