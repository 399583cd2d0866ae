package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/cortex/internal/dataset"
)

func readCSV(t *testing.T, r *bytes.Reader) *dataset.Dataset {
	t.Helper()
	d, err := dataset.ReadCSV(r)
	require.NoError(t, err)
	return d
}

func assertNoMissing(t *testing.T, d *dataset.Dataset) {
	t.Helper()
	for _, name := range d.Columns() {
		col, ok := d.Column(name)
		require.True(t, ok)
		assert.Zero(t, col.NullCount(), name)
	}
}

func TestHealToStdout(t *testing.T) {
	var stdout bytes.Buffer
	err := runHeal(context.Background(), &stdout, "testdata/loans.csv", &healOptions{strategy: "median"})
	require.NoError(t, err)

	healed := readCSV(t, bytes.NewReader(stdout.Bytes()))
	assert.Equal(t, []string{"applicant_id", "age", "income", "region", "gender", "applied_on", "approved"}, healed.Columns())
	assert.LessOrEqual(t, healed.Len(), 60)
	assertNoMissing(t, healed)
}

func TestHealToFile(t *testing.T) {
	withOutput(t, "json")
	out := filepath.Join(t.TempDir(), "healed.csv")

	var stdout bytes.Buffer
	err := runHeal(context.Background(), &stdout, "testdata/loans.csv", &healOptions{
		target:   "approved",
		out:      out,
		strategy: "knn",
	})
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, out, summary["output"])
	assert.Equal(t, "approved", summary["target"])
	assert.Equal(t, float64(60), summary["rows"])
	assert.Equal(t, float64(0), summary["missing_after"])
	assert.Greater(t, summary["missing_before"], float64(0))
	assert.NotContains(t, summary, "baseline_score")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	healed := readCSV(t, bytes.NewReader(data))
	assert.Equal(t, summary["rows_after"], float64(healed.Len()))
	assertNoMissing(t, healed)
}

func TestHealTextSummary(t *testing.T) {
	withOutput(t, "text")
	out := filepath.Join(t.TempDir(), "healed.csv")

	var stdout bytes.Buffer
	err := runHeal(context.Background(), &stdout, "testdata/loans.csv", &healOptions{target: "approved", out: out, strategy: "median"})
	require.NoError(t, err)

	text := re.ReplaceAllString(stdout.String(), "")
	assert.Contains(t, text, "COLUMN")
	assert.Contains(t, text, "FILLED")
	assert.Contains(t, text, "wrote")
	assert.Contains(t, text, out)
}

func TestHealDiff(t *testing.T) {
	var stdout bytes.Buffer
	err := runHeal(context.Background(), &stdout, "testdata/loans.csv", &healOptions{target: "approved", strategy: "median", diff: true})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(re.ReplaceAllString(stdout.String(), "")), "\n")
	require.NotEmpty(t, lines)

	var removed, added int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "- "):
			removed++
		case strings.HasPrefix(line, "+ "):
			added++
		default:
			t.Errorf("unexpected diff line %q", line)
		}
	}
	assert.Greater(t, removed, 0)
	assert.Greater(t, added, 0)
	assert.LessOrEqual(t, added, removed)
}

func TestHealDiffWithoutChanges(t *testing.T) {
	src := filepath.Join(t.TempDir(), "complete.csv")
	require.NoError(t, os.WriteFile(src, []byte("x,label\n1,a\n2,b\n3,a\n"), 0644))

	var stdout bytes.Buffer
	require.NoError(t, runHeal(context.Background(), &stdout, src, &healOptions{strategy: "median", diff: true}))
	assert.Contains(t, stdout.String(), "No changes")
}

func TestHealErrors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		opts     healOptions
		want     string
	}{
		{"bad strategy", "testdata/loans.csv", healOptions{strategy: "mean"}, "mean"},
		{"unknown target", "testdata/loans.csv", healOptions{target: "defaulted", strategy: "median"}, "defaulted"},
		{"missing file", "testdata/nope.csv", healOptions{strategy: "median"}, "nope.csv"},
		{"unwritable output", "testdata/loans.csv", healOptions{strategy: "median", out: filepath.Join(t.TempDir(), "missing", "healed.csv")}, "create output file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			var stdout bytes.Buffer
			err := runHeal(context.Background(), &stdout, tt.location, &opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
