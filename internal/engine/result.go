package engine

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageSchema      Stage = "schema"
	StageRemediation Stage = "remediation"
	StageHealth      Stage = "health"
	StageImbalance   Stage = "imbalance"
	StageBias        Stage = "bias"
	StageProfile     Stage = "profile"
	StageModeling    Stage = "modeling"
	StageScore       Stage = "score"
	StageNarrative   Stage = "narrative"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageSchema,
	StageRemediation,
	StageHealth,
	StageImbalance,
	StageBias,
	StageProfile,
	StageModeling,
	StageScore,
	StageNarrative,
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// AnalysisError is the failure of a single stage.
type AnalysisError struct {
	Stage Stage
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Status is the outcome of a stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result holds either a stage value, the error that stopped the stage, or
// the reason it was skipped.
type Result[T any] struct {
	Value   T
	Err     *AnalysisError
	Skipped string
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Failed records a stage failure.
func Failed[T any](stage Stage, err error) Result[T] {
	return Result[T]{Err: &AnalysisError{Stage: stage, Err: err}}
}

// Skip records why a stage did not run.
func Skip[T any](reason string) Result[T] {
	return Result[T]{Skipped: reason}
}

// OK reports whether the stage produced a value.
func (r Result[T]) OK() bool {
	return r.Err == nil && r.Skipped == ""
}

// Status returns the stage outcome.
func (r Result[T]) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case r.Skipped != "":
		return StatusSkipped
	}
	return StatusOK
}

// Message returns the failure or skip reason.
func (r Result[T]) Message() string {
	if r.Err != nil {
		return r.Err.Err.Error()
	}
	return r.Skipped
}

type failure struct {
	Stage Stage  `json:"stage" yaml:"stage"`
	Error string `json:"error" yaml:"error"`
}

type skipped struct {
	Info string `json:"info" yaml:"info"`
}

func (r Result[T]) encodable() any {
	switch r.Status() {
	case StatusFailed:
		return failure{Stage: r.Err.Stage, Error: r.Err.Err.Error()}
	case StatusSkipped:
		return skipped{Info: r.Skipped}
	}
	return r.Value
}

// MarshalJSON encodes the value on success, {"stage", "error"} on failure
// and {"info"} when skipped.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encodable())
}

// MarshalYAML mirrors MarshalJSON.
func (r Result[T]) MarshalYAML() (any, error) {
	return r.encodable(), nil
}

// JSONSchemaExtend replaces the reflected struct with the encoded shape:
// the stage value, a failure or a skip notice.
func (Result[T]) JSONSchemaExtend(s *jsonschema.Schema) {
	value := &jsonschema.Schema{}
	if s.Properties != nil {
		for _, key := range []string{"value", "Value"} {
			if v, ok := s.Properties.Get(key); ok {
				value = v
				break
			}
		}
	}

	failed := jsonschema.NewProperties()
	failed.Set("stage", &jsonschema.Schema{Type: "string"})
	failed.Set("error", &jsonschema.Schema{Type: "string"})
	info := jsonschema.NewProperties()
	info.Set("info", &jsonschema.Schema{Type: "string"})

	*s = jsonschema.Schema{OneOf: []*jsonschema.Schema{
		value,
		{Type: "object", Properties: failed, Required: []string{"stage", "error"}},
		{Type: "object", Properties: info, Required: []string{"info"}},
	}}
}
