// Package modeling implements the Model Diagnostics Service: a baseline
// model is cross-validated on the healed dataset to estimate predictive
// signal, detect target leakage and rank features.
package modeling

import (
	"context"
	"fmt"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/schema"
)

const (
	ModelTypeClassification = "Classification"
	ModelTypeRegression     = "Regression"

	// LeakageThreshold is the mean CV score above which the data is
	// assumed to leak the target.
	LeakageThreshold = 0.99
	LeakageWarning   = "SEVERE LEAKAGE DETECTED: CV score is nearly perfect. Data is likely contaminated."

	// DefaultFolds is the number of cross-validation folds.
	DefaultFolds = 5
)

// Service evaluates a prepared dataset. Implementations report training
// failures as *Error and must not panic.
type Service interface {
	Diagnose(ctx context.Context, req Request) (*Result, error)
}

// Request is the input to a Service. Data must already be healed.
type Request struct {
	Data           *dataset.Dataset
	Target         string
	Numeric        []string
	Categorical    []string
	Datetime       []string
	Classification bool
}

// NewRequest derives a request from a healed dataset and its schema.
func NewRequest(healed *dataset.Dataset, s *schema.Schema) Request {
	return Request{
		Data:           healed,
		Target:         s.Target.Name,
		Numeric:        append([]string(nil), s.Numeric...),
		Categorical:    append([]string(nil), s.Categorical...),
		Datetime:       append([]string(nil), s.Datetime...),
		Classification: s.IsClassification(),
	}
}

// Importance is the normalized weight of one encoded feature.
type Importance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// Result is the outcome of a successful diagnosis. FeatureImportances is
// sorted from most to least important.
type Result struct {
	ModelType          string       `json:"model_type" yaml:"model_type"`
	MeanCVScore        float64      `json:"mean_cv_score" yaml:"mean_cv_score"`
	CVScores           []float64    `json:"cv_scores" yaml:"cv_scores"`
	LeakageWarning     *string      `json:"leakage_warning" yaml:"leakage_warning"`
	FeatureImportances []Importance `json:"feature_importances" yaml:"feature_importances"`
}

// Leaking reports whether the result carries a leakage warning.
func (r *Result) Leaking() bool {
	return r.LeakageWarning != nil
}

// Error is a training or service failure.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func cvFailed(err error) *Error {
	return &Error{Message: fmt.Sprintf("Cross-validation failed. Ensure target variable and features are correctly formatted. Error: %v", err)}
}

func leakageWarning(mean float64) *string {
	if mean <= LeakageThreshold {
		return nil
	}
	w := LeakageWarning
	return &w
}

// Disabled is a Service that declines every request.
type Disabled struct{}

func (Disabled) Diagnose(context.Context, Request) (*Result, error) {
	return nil, &Error{Message: "model diagnostics disabled"}
}
