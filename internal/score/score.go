// Package score condenses health and imbalance findings into a single
// 0-100 health score.
package score

import (
	"math"

	"github.com/lacquerai/cortex/internal/health"
	"github.com/lacquerai/cortex/internal/imbalance"
)

// Penalties is the deduction taken for each category.
type Penalties struct {
	Missing     float64 `json:"missing" yaml:"missing"`
	Imbalance   float64 `json:"imbalance" yaml:"imbalance"`
	Duplicates  float64 `json:"duplicates" yaml:"duplicates"`
	Cardinality float64 `json:"cardinality" yaml:"cardinality"`
	Constant    float64 `json:"constant" yaml:"constant"`
	Total       float64 `json:"total" yaml:"total"`
}

type Result struct {
	Score          int       `json:"score" yaml:"score"`
	Band           string    `json:"band" yaml:"band"`
	Interpretation string    `json:"interpretation" yaml:"interpretation"`
	Policy         string    `json:"policy" yaml:"policy"`
	Penalties      Penalties `json:"penalties" yaml:"penalties"`
}

// Scorer applies a Policy. It has no mutable state.
type Scorer struct {
	policy Policy
}

// New creates a Scorer for p. The policy is copied.
func New(p Policy) *Scorer {
	p.Bands = append([]Band(nil), p.Bands...)
	return &Scorer{policy: p}
}

// Policy returns the policy the scorer applies.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score computes the health score. A nil imbalance report and empty health
// tables cost nothing. totalRows is accepted for policies that scale by
// dataset size; the default rules do not use it.
func (s *Scorer) Score(h health.Report, imb imbalance.Report, totalRows int) Result {
	p := Penalties{
		Missing:    s.missingPenalty(h.Missing),
		Imbalance:  s.imbalancePenalty(imb),
		Duplicates: s.duplicatePenalty(h.Duplicates),
	}
	p.Cardinality, p.Constant = s.cardinalityPenalty(h.Cardinality)
	p.Total = p.Missing + p.Imbalance + p.Duplicates + p.Cardinality + p.Constant

	final := 100 - int(math.RoundToEven(p.Total))
	if final < 0 {
		final = 0
	}

	result := Result{Score: final, Policy: s.policy.Name, Penalties: p}
	for _, b := range s.policy.sortedBands() {
		if final >= b.MinScore {
			result.Band = b.Name
			result.Interpretation = b.Interpretation
			break
		}
	}
	return result
}

func (s *Scorer) missingPenalty(missing []health.Missing) float64 {
	if len(missing) == 0 {
		return 0
	}
	rules, weight := s.policy.Missing, s.policy.Weights.Missing

	sum := 0.0
	for _, m := range missing {
		if m.Percent > rules.Catastrophic {
			return weight
		}
		sum += m.Percent
	}

	switch mean := sum / float64(len(missing)); {
	case mean > rules.High:
		return weight * rules.HighFactor
	case mean > rules.Moderate:
		return weight * rules.ModerateFactor
	default:
		return 0
	}
}

func (s *Scorer) imbalancePenalty(imb imbalance.Report) float64 {
	c, ok := imb.(*imbalance.Classification)
	if !ok || c == nil {
		return 0
	}
	switch c.Severity {
	case imbalance.SeveritySevere:
		return s.policy.Weights.Imbalance * s.policy.Imbalance.SevereFactor
	case imbalance.SeverityMedium:
		return s.policy.Weights.Imbalance * s.policy.Imbalance.MediumFactor
	default:
		return 0
	}
}

func (s *Scorer) duplicatePenalty(d health.Duplicates) float64 {
	rules := s.policy.Duplicates
	switch {
	case d.DuplicatePercent > rules.High:
		return s.policy.Weights.Duplicates
	case d.DuplicatePercent > rules.Moderate:
		return s.policy.Weights.Duplicates * rules.ModerateFactor
	default:
		return 0
	}
}

func (s *Scorer) cardinalityPenalty(card []health.Cardinality) (id, constant float64) {
	if len(card) == 0 {
		return 0, 0
	}
	var high, constants int
	for _, c := range card {
		if c.Flag == health.FlagHighPotentialID {
			high++
		}
		if c.Unique <= 1 {
			constants++
		}
	}
	n := float64(len(card))
	return float64(high) / n * s.policy.Weights.Cardinality, float64(constants) / n * s.policy.Weights.Constant
}
