package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/schema"
)

func TestDiagnoseGolden(t *testing.T) {
	tests := []struct {
		name string
		opts diagnoseOptions
	}{
		{
			name: "text",
			opts: diagnoseOptions{target: "approved", protected: []string{"gender"}, format: "text"},
		},
		{
			name: "markdown",
			opts: diagnoseOptions{target: "approved", protected: []string{"gender", "region"}, format: "markdown"},
		},
		{
			name: "no_protected",
			opts: diagnoseOptions{target: "approved", format: "text"},
		},
		{
			name: "positive_label",
			opts: diagnoseOptions{target: "approved", protected: []string{"gender"}, positiveLabel: "yes", format: "markdown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.modeler = modelerNone
			opts.quiet = true

			var stdout, stderr bytes.Buffer
			err := runDiagnose(context.Background(), &stdout, &stderr, "testdata/loans.csv", &opts)
			require.NoError(t, err)

			assertGoldenFile(t, "testdata/diagnose/"+tt.name, &stdout)
		})
	}
}

func TestDiagnoseJSON(t *testing.T) {
	opts := &diagnoseOptions{
		pipelineOptions: pipelineOptions{modeler: modelerLocal, trees: 10},
		target:          "approved",
		protected:       []string{"gender"},
		format:          "json",
		quiet:           true,
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, runDiagnose(context.Background(), &stdout, &stderr, "testdata/loans.csv", opts))

	var report map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))

	assert.Regexp(t, `^run_`, report["run_id"])
	assert.Equal(t, "approved", report["target"])
	assert.Equal(t, map[string]any{"name": "loans.csv", "rows": float64(60), "columns": float64(7)}, report["dataset"])

	score, ok := report["health_score"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)

	for _, stage := range []string{"schema", "remediation", "health", "imbalance", "bias", "profile", "score"} {
		assert.NotContains(t, report[stage], "error", stage)
	}
	assert.NotNil(t, report["modeling"])
	assert.Empty(t, stderr.String())
}

func TestDiagnoseTrace(t *testing.T) {
	opts := &diagnoseOptions{
		pipelineOptions: pipelineOptions{modeler: modelerNone},
		target:          "approved",
		format:          "json",
		trace:           true,
		quiet:           true,
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, runDiagnose(context.Background(), &stdout, &stderr, "testdata/loans.csv", opts))

	assert.Contains(t, stderr.String(), `"Name": "cortex.run"`)
	assert.Contains(t, stderr.String(), `"Name": "stage.health"`)
}

func TestDiagnoseErrors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		opts     diagnoseOptions
		check    func(t *testing.T, err error)
	}{
		{
			name:     "missing target column",
			location: "testdata/loans.csv",
			opts:     diagnoseOptions{target: "defaulted", format: "text"},
			check: func(t *testing.T, err error) {
				var target *schema.InvalidTargetError
				assert.ErrorAs(t, err, &target)
				assert.ErrorContains(t, err, "defaulted")
			},
		},
		{
			name:     "header only",
			location: "testdata/header_only.csv",
			opts:     diagnoseOptions{target: "score", format: "text"},
			check: func(t *testing.T, err error) {
				var malformed *dataset.MalformedInputError
				assert.ErrorAs(t, err, &malformed)
			},
		},
		{
			name:     "duplicate columns",
			location: "testdata/duplicate_columns.csv",
			opts:     diagnoseOptions{target: "b", format: "text"},
			check: func(t *testing.T, err error) {
				var malformed *dataset.MalformedInputError
				assert.ErrorAs(t, err, &malformed)
			},
		},
		{
			name:     "missing file",
			location: "testdata/nope.csv",
			opts:     diagnoseOptions{target: "approved", format: "text"},
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
		{
			name:     "unknown format",
			location: "testdata/loans.csv",
			opts:     diagnoseOptions{target: "approved", format: "pdf"},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "pdf")
			},
		},
		{
			name:     "unknown modeler",
			location: "testdata/loans.csv",
			opts:     diagnoseOptions{pipelineOptions: pipelineOptions{modeler: "quantum"}, target: "approved", format: "text"},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, `unknown modeler "quantum"`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if opts.modeler == "" {
				opts.modeler = modelerNone
			}
			opts.quiet = true

			var stdout, stderr bytes.Buffer
			err := runDiagnose(context.Background(), &stdout, &stderr, tt.location, &opts)
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, stdout.String())
		})
	}
}
