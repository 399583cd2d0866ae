package imbalance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/cortex/internal/dataset"
)

func labels(counts map[string]int, order ...string) *dataset.Column {
	var values []dataset.Value
	for _, l := range order {
		for i := 0; i < counts[l]; i++ {
			values = append(values, dataset.Text(l))
		}
	}
	return &dataset.Column{Name: "target", Type: dataset.TypeText, Values: values}
}

func numbers(xs ...float64) *dataset.Column {
	values := make([]dataset.Value, len(xs))
	for i, x := range xs {
		values[i] = dataset.Number(x)
	}
	return &dataset.Column{Name: "target", Type: dataset.TypeNumeric, Values: values}
}

func TestClassificationSeverity(t *testing.T) {
	tests := []struct {
		name     string
		col      *dataset.Column
		ratio    float64
		severity Severity
		minority string
	}{
		{"balanced", labels(map[string]int{"A": 50, "B": 50}, "A", "B"), 1.0, SeverityLow, "A"},
		{"medium", labels(map[string]int{"Yes": 80, "No": 20}, "Yes", "No"), 0.25, SeverityMedium, "No"},
		{"severe", func() *dataset.Column {
			xs := make([]float64, 0, 100)
			for i := 0; i < 95; i++ {
				xs = append(xs, 0)
			}
			for i := 0; i < 5; i++ {
				xs = append(xs, 1)
			}
			return numbers(xs...)
		}(), 0.0526, SeveritySevere, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := AnalyzeClassification(tt.col)
			c, ok := report.(*Classification)
			require.True(t, ok, "got %T", report)

			assert.Equal(t, tt.ratio, c.ImbalanceRatio)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.minority, c.MinorityClass)
			if tt.severity == SeverityLow {
				assert.NotContains(t, c.Warning, "will likely suffer")
			} else {
				assert.Contains(t, c.Warning, "will likely suffer")
			}
		})
	}
}

func TestClassificationDistribution(t *testing.T) {
	col := labels(map[string]int{"Yes": 80, "No": 20}, "Yes", "No")
	col.Values = append(col.Values, dataset.Null(), dataset.Null())
	c := AnalyzeClassification(col).(*Classification)

	assert.Equal(t, []ClassCount{
		{Label: "Yes", Count: 80, Percent: 78.43},
		{Label: "No", Count: 20, Percent: 19.61},
	}, c.Distribution)
	assert.Equal(t, "Minority class ratio is 25.00%. Severity: MEDIUM. Model performance will likely suffer on the minority class.", c.Warning)
}

func TestSingleClassIsDegenerate(t *testing.T) {
	report := AnalyzeClassification(numbers(1, 1, 1, 1))
	assert.Equal(t, &Degenerate{Type: KindDegenerate, Status: StatusSingleClass}, report)
}

func TestRegression(t *testing.T) {
	xs := make([]float64, 0, 43)
	for i := 1; i <= 40; i++ {
		xs = append(xs, float64(i))
	}
	xs = append(xs, 100, 120, 150)

	r, ok := AnalyzeRegression(numbers(xs...)).(*Regression)
	require.True(t, ok)
	assert.Equal(t, 2.84, r.Skewness)
	assert.Equal(t, SeverityHigh, r.SkewSeverity)
	assert.Equal(t, 3, r.OutlierCount)
	assert.Contains(t, r.Warning, "log/root transformation")
}

func TestRegressionSeverityBands(t *testing.T) {
	symmetric := make([]float64, 20)
	for i := range symmetric {
		symmetric[i] = float64(i + 1)
	}
	r := AnalyzeRegression(numbers(symmetric...)).(*Regression)
	assert.Equal(t, SeverityLow, r.SkewSeverity)
	assert.Equal(t, "Target distribution skewness is 0.00 (LOW).", r.Warning)

	moderate := append(append([]float64{}, symmetric...), 26, 30, 34)
	r = AnalyzeRegression(numbers(moderate...)).(*Regression)
	assert.Equal(t, 0.8, r.Skewness)
	assert.Equal(t, SeverityMedium, r.SkewSeverity)
	assert.NotContains(t, r.Warning, "transformation")
}

func TestEmptyRegressionTarget(t *testing.T) {
	col := &dataset.Column{Name: "target", Type: dataset.TypeNumeric, Values: make([]dataset.Value, 10)}
	assert.Equal(t, &Degenerate{Type: KindDegenerate, Status: StatusEmptyTarget}, AnalyzeRegression(col))
}

func TestAnalyzeRoutesByTargetType(t *testing.T) {
	d := dataset.MustNew(numbers(1, 2, 3, 4, 5, 6))
	assert.Equal(t, KindRegression, Analyze(d, "target", true).Kind())
	assert.Equal(t, KindClassification, Analyze(d, "target", false).Kind())
}

func TestAnalyzeNeverFails(t *testing.T) {
	d := dataset.MustNew(numbers(1, 2))
	report := Analyze(d, "absent", false)
	c, ok := report.(*Critical)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, c.Severity)
	assert.Equal(t, 0.0, c.ImbalanceRatio)
	assert.Contains(t, c.Error, "absent")

	report = Analyze(nil, "target", false)
	assert.Equal(t, KindCritical, report.Kind())
}

func TestReportJSONCarriesType(t *testing.T) {
	out, err := json.Marshal(AnalyzeClassification(numbers(1, 1, 0)))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"classification"`)
	assert.Contains(t, string(out), `"minority_class":"0"`)
}

func TestRegressionWithExtremeValue(t *testing.T) {
	r := AnalyzeRegression(numbers(1e200, 0, 0, 0, 1, 2)).(*Regression)
	assert.Equal(t, 2.45, r.Skewness)
	assert.Equal(t, SeverityHigh, r.SkewSeverity)
	assert.Equal(t, 1, r.OutlierCount)

	_, err := json.Marshal(Report(r))
	assert.NoError(t, err)
}
