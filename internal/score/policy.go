package score

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SupportedPolicyVersions is the range of policy file versions this build
// understands.
const SupportedPolicyVersions = ">= 1.0.0, < 2.0.0"

var validate = validator.New()

// Weights are the maximum deduction of each penalty category.
type Weights struct {
	Missing     float64 `yaml:"missing" json:"missing" validate:"gte=0"`
	Imbalance   float64 `yaml:"imbalance" json:"imbalance" validate:"gte=0"`
	Duplicates  float64 `yaml:"duplicates" json:"duplicates" validate:"gte=0"`
	Cardinality float64 `yaml:"cardinality" json:"cardinality" validate:"gte=0"`
	Constant    float64 `yaml:"constant" json:"constant" validate:"gte=0"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Missing + w.Imbalance + w.Duplicates + w.Cardinality + w.Constant
}

// MissingRules grade missingness. Any column above Catastrophic percent
// costs the full weight; otherwise the mean percent of affected columns is
// compared against High and Moderate.
type MissingRules struct {
	Catastrophic   float64 `yaml:"catastrophic" json:"catastrophic" validate:"gt=0,lte=100"`
	High           float64 `yaml:"high" json:"high" validate:"gt=0,ltefield=Catastrophic"`
	HighFactor     float64 `yaml:"high_factor" json:"high_factor" validate:"gte=0,lte=1"`
	Moderate       float64 `yaml:"moderate" json:"moderate" validate:"gte=0,ltefield=High"`
	ModerateFactor float64 `yaml:"moderate_factor" json:"moderate_factor" validate:"gte=0,lte=1"`
}

// DuplicateRules grade the duplicate row percent.
type DuplicateRules struct {
	High           float64 `yaml:"high" json:"high" validate:"gt=0,lte=100"`
	Moderate       float64 `yaml:"moderate" json:"moderate" validate:"gte=0,ltefield=High"`
	ModerateFactor float64 `yaml:"moderate_factor" json:"moderate_factor" validate:"gte=0,lte=1"`
}

// ImbalanceRules scale the imbalance weight by classification severity.
type ImbalanceRules struct {
	SevereFactor float64 `yaml:"severe_factor" json:"severe_factor" validate:"gte=0,lte=1"`
	MediumFactor float64 `yaml:"medium_factor" json:"medium_factor" validate:"gte=0,lte=1"`
}

// Band maps a minimum score to an interpretation.
type Band struct {
	Name           string `yaml:"name" json:"name" validate:"required"`
	MinScore       int    `yaml:"min_score" json:"min_score" validate:"gte=0,lte=100"`
	Interpretation string `yaml:"interpretation" json:"interpretation" validate:"required"`
}

// Policy is the immutable configuration of a Scorer.
type Policy struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Version    string         `yaml:"version" json:"version" validate:"required"`
	Weights    Weights        `yaml:"weights" json:"weights"`
	Missing    MissingRules   `yaml:"missing" json:"missing"`
	Duplicates DuplicateRules `yaml:"duplicates" json:"duplicates"`
	Imbalance  ImbalanceRules `yaml:"imbalance" json:"imbalance"`
	Bands      []Band         `yaml:"bands" json:"bands" validate:"required,min=1,dive"`
}

// DefaultPolicy returns the standard weights and thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Name:    "default",
		Version: "1.0.0",
		Weights: Weights{
			Missing:     35,
			Imbalance:   30,
			Duplicates:  15,
			Cardinality: 10,
			Constant:    10,
		},
		Missing: MissingRules{
			Catastrophic:   80,
			High:           40,
			HighFactor:     0.75,
			Moderate:       5,
			ModerateFactor: 0.25,
		},
		Duplicates: DuplicateRules{
			High:           10,
			Moderate:       1,
			ModerateFactor: 0.5,
		},
		Imbalance: ImbalanceRules{
			SevereFactor: 1.0,
			MediumFactor: 0.5,
		},
		Bands: []Band{
			{Name: "Excellent", MinScore: 90, Interpretation: "Excellent. This dataset is exceptionally clean and ready for modeling."},
			{Name: "Good", MinScore: 70, Interpretation: "Good. Minor issues detected, manageable with standard preprocessing (imputation, light balancing)."},
			{Name: "Fair", MinScore: 50, Interpretation: "Fair. Significant risks (high imbalance or missing data) detected. Requires careful data remediation before modeling."},
			{Name: "Poor", MinScore: 0, Interpretation: "Poor. Critical data issues detected. Modeling is highly discouraged without major data cleaning or feature engineering."},
		},
	}
}

// Validate checks field ranges, the policy version and that the weights
// add up to 100.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid scoring policy: %w", err)
	}

	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("invalid scoring policy version %q: %w", p.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedPolicyVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("scoring policy version %s is not supported (want %s)", v, SupportedPolicyVersions)
	}

	if sum := p.Weights.Sum(); math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("scoring policy weights must sum to 100, got %g", sum)
	}

	hasFloor := false
	for _, b := range p.Bands {
		if b.MinScore == 0 {
			hasFloor = true
		}
	}
	if !hasFloor {
		return fmt.Errorf("scoring policy needs a band with min_score 0")
	}
	return nil
}

// LoadPolicy reads a YAML policy file. Fields left out keep their default
// values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read scoring policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse scoring policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// sortedBands returns the bands from highest to lowest minimum score.
func (p Policy) sortedBands() []Band {
	bands := make([]Band, len(p.Bands))
	copy(bands, p.Bands)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinScore > bands[j].MinScore })
	return bands
}
