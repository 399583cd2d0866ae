package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/health"
	"github.com/lacquerai/cortex/internal/imbalance"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/narrate"
	"github.com/lacquerai/cortex/internal/schema"
	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

// loans builds a small credit dataset with gaps in age and income.
func loans(rows int) *dataset.Dataset {
	var age, income, region, gender, approved []dataset.Value
	regions := []string{"north", "south", "east"}
	for i := 0; i < rows; i++ {
		if i%10 == 3 {
			age = append(age, dataset.Null())
		} else {
			age = append(age, dataset.Number(float64(20+i%40)))
		}
		if i%15 == 7 {
			income = append(income, dataset.Null())
		} else {
			income = append(income, dataset.Number(float64(30000+(i*1733)%50000)))
		}
		region = append(region, dataset.Text(regions[i%3]))
		if i%4 == 0 {
			gender = append(gender, dataset.Text("F"))
		} else {
			gender = append(gender, dataset.Text("M"))
		}
		if i%3 == 0 {
			approved = append(approved, dataset.Text("yes"))
		} else {
			approved = append(approved, dataset.Text("no"))
		}
	}
	return dataset.MustNew(
		&dataset.Column{Name: "age", Values: age},
		&dataset.Column{Name: "income", Values: income},
		&dataset.Column{Name: "region", Values: region},
		&dataset.Column{Name: "gender", Values: gender},
		&dataset.Column{Name: "approved", Values: approved},
	)
}

type fakeModeler struct {
	result *modeling.Result
	err    error
	panic  string
	got    modeling.Request
}

func (f *fakeModeler) Diagnose(_ context.Context, req modeling.Request) (*modeling.Result, error) {
	if f.panic != "" {
		panic(f.panic)
	}
	f.got = req
	return f.result, f.err
}

type fakeNarrator struct {
	text  string
	err   error
	facts narrate.Facts
}

func (f *fakeNarrator) Name() string { return "fake" }

func (f *fakeNarrator) Narrate(_ context.Context, facts narrate.Facts) (string, error) {
	f.facts = facts
	return f.text, f.err
}

func okModeler() *fakeModeler {
	return &fakeModeler{result: &modeling.Result{
		ModelType:   modeling.ModelTypeClassification,
		MeanCVScore: 0.71,
		CVScores:    []float64{0.7, 0.72, 0.71, 0.7, 0.72},
		FeatureImportances: []modeling.Importance{
			{Feature: "income", Weight: 0.6},
			{Feature: "age", Weight: 0.4},
		},
	}}
}

func TestRunFullPipeline(t *testing.T) {
	modeler := okModeler()
	narrator := &fakeNarrator{text: "The data is mostly ready."}
	o := New(WithModeler(modeler), WithNarrator(narrator))

	rep, err := o.Run(context.Background(), Request{
		Data:      loans(60),
		Name:      "loans.csv",
		Target:    "approved",
		Protected: []string{"gender"},
	}, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rep.RunID, "run_"))
	assert.Equal(t, DatasetInfo{Name: "loans.csv", Rows: 60, Columns: 5}, rep.Dataset)
	assert.Empty(t, rep.Failures())
	for _, s := range rep.Stages() {
		assert.Equal(t, StatusOK, s.Status, "stage %s", s.Stage)
	}

	assert.Equal(t, []string{"age", "income"}, rep.Schema.Value.Numeric)
	assert.Equal(t, schema.Categorical, rep.Schema.Value.Target.Type)
	assert.False(t, rep.TargetIsNumeric())

	assert.Zero(t, rep.Healed().NullCount(), "healed data has no gaps")
	assert.Equal(t, 60, rep.Healed().Len())
	assert.Positive(t, rep.Health.Value.MissingPercent("age"))

	assert.GreaterOrEqual(t, rep.HealthScore, 0)
	assert.LessOrEqual(t, rep.HealthScore, 100)
	assert.Equal(t, rep.Score.Value.Interpretation, rep.Interpretation)

	require.NotNil(t, modeler.got.Data)
	assert.Zero(t, modeler.got.Data.NullCount(), "modeling runs on healed data")
	assert.Equal(t, "approved", modeler.got.Target)
	assert.True(t, modeler.got.Classification)

	assert.Equal(t, "The data is mostly ready.", rep.Narrative.Value)
	assert.Equal(t, rep.HealthScore, narrator.facts.Score)
	assert.Contains(t, narrator.facts.Findings, "baseline Classification model scored 0.7100 in cross-validation")
}

func TestRunBaselineModeler(t *testing.T) {
	o := New(WithModeler(modeling.NewBaseline(modeling.WithTrees(10))))
	rep, err := o.Run(context.Background(), Request{Data: loans(60), Target: "approved"}, nil)
	require.NoError(t, err)

	require.True(t, rep.Modeling.OK(), rep.Modeling.Message())
	assert.Equal(t, modeling.ModelTypeClassification, rep.Modeling.Value.ModelType)
	assert.Len(t, rep.Modeling.Value.CVScores, modeling.DefaultFolds)
}

func TestRunSkipsBiasWithoutProtectedColumns(t *testing.T) {
	rep, err := New(WithModeler(okModeler())).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, rep.Bias.Status())
	assert.Equal(t, MsgBiasSkipped, rep.Bias.Skipped)

	raw, err := json.Marshal(rep.Bias)
	require.NoError(t, err)
	assert.JSONEq(t, `{"info": "Bias analysis skipped. No sensitive columns selected."}`, string(raw))
}

func TestRunFatalInput(t *testing.T) {
	empty := dataset.MustNew(&dataset.Column{Name: "approved"})

	tests := []struct {
		name  string
		req   Request
		check func(t *testing.T, err error)
	}{
		{
			name: "empty dataset",
			req:  Request{Data: empty, Target: "approved"},
			check: func(t *testing.T, err error) {
				var malformed *dataset.MalformedInputError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, dataset.ReasonEmpty, malformed.Reason)
			},
		},
		{
			name: "missing target",
			req:  Request{Data: loans(10), Target: "churn"},
			check: func(t *testing.T, err error) {
				var invalid *schema.InvalidTargetError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, "churn", invalid.Column)
			},
		},
		{
			name: "no dataset",
			req:  Request{Target: "approved"},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "invalid request")
			},
		},
		{
			name: "no target",
			req:  Request{Data: loans(10)},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "invalid request")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := pkgEvents.NewCollector()
			rep, err := NewRunner(New(), collector).Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, rep)
			tt.check(t, err)
		})
	}
}

func TestRunIsolatesStageFailures(t *testing.T) {
	t.Run("modeler error", func(t *testing.T) {
		modeler := &fakeModeler{err: &modeling.Error{Message: "Cross-validation failed."}}
		rep, err := New(WithModeler(modeler)).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
		require.NoError(t, err)

		require.Len(t, rep.Failures(), 1)
		assert.Equal(t, StageModeling, rep.Failures()[0].Stage)
		assert.Equal(t, "Cross-validation failed.", rep.Modeling.Message())
		assert.True(t, rep.Score.OK(), "score does not depend on modeling")
		assert.Equal(t, rep.Score.Value.Score, rep.HealthScore)
	})

	t.Run("modeler panic", func(t *testing.T) {
		rep, err := New(WithModeler(&fakeModeler{panic: "boom"})).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "panic: boom", rep.Modeling.Message())

		raw, err := json.Marshal(rep.Modeling)
		require.NoError(t, err)
		assert.JSONEq(t, `{"stage": "modeling", "error": "panic: boom"}`, string(raw))
	})

	t.Run("narrator error", func(t *testing.T) {
		narrator := &fakeNarrator{err: errors.New("rate limited")}
		rep, err := New(WithModeler(okModeler()), WithNarrator(narrator)).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, rep.Narrative.Status())
		assert.Equal(t, "rate limited", rep.Narrative.Message())
		assert.True(t, rep.Modeling.OK())
	})

	t.Run("disabled modeler and narrator", func(t *testing.T) {
		rep, err := New(WithModeler(nil)).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
		require.NoError(t, err)
		assert.Equal(t, MsgModelingDisabled, rep.Modeling.Skipped)
		assert.Equal(t, MsgNarrativeDisabled, rep.Narrative.Skipped)
		assert.Empty(t, rep.Failures())
	})
}

func testRun() *run {
	return &run{id: "run_test", tracer: sdktrace.NewTracerProvider().Tracer(tracerName)}
}

func TestModelingPrerequisites(t *testing.T) {
	d := loans(30)
	s, err := schema.Infer(d, "approved")
	require.NoError(t, err)
	target, _ := d.Column("approved")
	classification := imbalance.AnalyzeClassification(target)

	tests := []struct {
		name string
		rep  *Report
	}{
		{
			name: "schema failed",
			rep: &Report{
				Schema:    Failed[*schema.Schema](StageSchema, errors.New("boom")),
				Imbalance: Ok(classification),
			},
		},
		{
			name: "imbalance failed",
			rep: &Report{
				Schema:    Ok(s),
				Imbalance: Failed[imbalance.Report](StageImbalance, errors.New("boom")),
			},
		},
		{
			name: "imbalance critical",
			rep: &Report{
				Schema:    Ok(s),
				Imbalance: Ok[imbalance.Report](imbalance.NewCritical(errors.New("boom"))),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modeler := okModeler()
			tt.rep.healed = d
			res := New(WithModeler(modeler)).model(context.Background(), testRun(), tt.rep)
			assert.Equal(t, StatusFailed, res.Status())
			assert.Equal(t, MsgModelingPrerequisites, res.Message())
			assert.Nil(t, modeler.got.Data, "modeler is not called")
		})
	}
}

func TestScoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		health Result[health.Report]
		imb    Result[imbalance.Report]
		want   string
	}{
		{
			name:   "health failed",
			health: Failed[health.Report](StageHealth, errors.New("boom")),
			imb:    Ok[imbalance.Report](&imbalance.Degenerate{Type: imbalance.KindDegenerate, Status: "empty"}),
			want:   "Score calculation failed: health analysis unavailable",
		},
		{
			name:   "imbalance failed",
			health: Ok(health.Empty()),
			imb:    Failed[imbalance.Report](StageImbalance, errors.New("boom")),
			want:   "Score calculation failed: imbalance analysis unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &Report{Health: tt.health, Imbalance: tt.imb, HealthScore: 55}
			New().score(context.Background(), testRun(), rep)
			assert.Equal(t, StatusFailed, rep.Score.Status())
			assert.Zero(t, rep.HealthScore)
			assert.Equal(t, tt.want, rep.Interpretation)
		})
	}
}

func TestRunEvents(t *testing.T) {
	collector := pkgEvents.NewCollector()
	runner := NewRunner(New(WithModeler(okModeler())), collector)

	rep, err := runner.RunWithID(context.Background(), "run_fixed", Request{Data: loans(30), Target: "approved"})
	require.NoError(t, err)
	assert.Equal(t, "run_fixed", rep.RunID)

	types := collector.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, pkgEvents.EventRunStarted, types[0])
	assert.Equal(t, pkgEvents.EventRunCompleted, types[len(types)-1])

	terminal := map[string]pkgEvents.EventType{}
	started := 0
	for _, e := range collector.Events {
		assert.Equal(t, "run_fixed", e.RunID)
		switch e.Type {
		case pkgEvents.EventStageStarted:
			started++
			assert.Equal(t, len(Stages), e.TotalStages)
			assert.Equal(t, Stage(e.Stage).index(), e.StageIndex)
		case pkgEvents.EventStageCompleted, pkgEvents.EventStageFailed, pkgEvents.EventStageSkipped:
			terminal[e.Stage] = e.Type
		}
	}
	assert.Equal(t, len(Stages), started)
	assert.Equal(t, map[string]pkgEvents.EventType{
		"schema":      pkgEvents.EventStageCompleted,
		"remediation": pkgEvents.EventStageCompleted,
		"health":      pkgEvents.EventStageCompleted,
		"imbalance":   pkgEvents.EventStageCompleted,
		"bias":        pkgEvents.EventStageSkipped,
		"profile":     pkgEvents.EventStageCompleted,
		"modeling":    pkgEvents.EventStageCompleted,
		"score":       pkgEvents.EventStageCompleted,
		"narrative":   pkgEvents.EventStageSkipped,
	}, terminal)

	last := collector.Events[len(collector.Events)-1]
	assert.Equal(t, rep.HealthScore, last.Metadata["health_score"])
}

func TestRunSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	o := New(WithModeler(&fakeModeler{err: errors.New("boom")}), WithTracerProvider(tp))
	_, err := o.Run(context.Background(), Request{Data: loans(30), Target: "approved", Protected: []string{"gender"}}, nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
		if span.Name() == "stage.modeling" {
			assert.Equal(t, codes.Error, span.Status().Code)
		}
	}
	assert.True(t, names["cortex.run"])
	for _, s := range []Stage{StageSchema, StageRemediation, StageHealth, StageImbalance, StageBias, StageProfile, StageModeling, StageScore} {
		assert.True(t, names[fmt.Sprintf("stage.%s", s)], "span for %s", s)
	}
}

func TestReportJSON(t *testing.T) {
	rep, err := New(WithModeler(nil)).Run(context.Background(), Request{Data: loans(30), Target: "approved"}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "approved", decoded["target"])
	assert.Equal(t, map[string]any{"info": MsgModelingDisabled}, decoded["modeling"])
	assert.Equal(t, map[string]any{"info": MsgBiasSkipped}, decoded["bias"])
	assert.Contains(t, decoded["health"], "missing")
}

func TestReportJSONWithExtremeRegressionTarget(t *testing.T) {
	d, err := dataset.ReadCSV(strings.NewReader("x,y\n1,1e200\n2,0\n3,0\n4,0\n5,1\n6,2\n"))
	require.NoError(t, err)

	rep, err := New(WithModeler(nil)).Run(context.Background(), Request{Data: d, Target: "y"}, nil)
	require.NoError(t, err)

	require.True(t, rep.Imbalance.OK())
	r, ok := rep.Imbalance.Value.(*imbalance.Regression)
	require.True(t, ok)
	assert.Equal(t, 2.45, r.Skewness)
	assert.Equal(t, imbalance.SeverityHigh, r.SkewSeverity)

	_, err = json.Marshal(rep)
	require.NoError(t, err)
}
