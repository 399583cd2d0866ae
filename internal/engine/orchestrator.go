// Package engine runs the diagnostic pipeline. Each stage is isolated: a
// failure is recorded in that stage's slot of the Report and later stages
// run on whatever earlier stages produced.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

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
	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

const tracerName = "cortex.engine"

const (
	MsgBiasSkipped           = "Bias analysis skipped. No sensitive columns selected."
	MsgModelingPrerequisites = "Prerequisites for modeling failed."
	MsgModelingDisabled      = "Model diagnostics disabled."
	MsgNarrativeDisabled     = "Narrative disabled."
	msgScoreFailed           = "Score calculation failed: %s"
	msgRunFailed             = "Analysis failed in one or more critical steps."
)

var validate = validator.New()

// Request describes one diagnostic run.
type Request struct {
	Data          *dataset.Dataset `validate:"required"`
	Name          string
	Target        string `validate:"required"`
	Protected     []string
	PositiveLabel string
}

// Orchestrator wires the stages together. It is safe for concurrent use.
type Orchestrator struct {
	remediator *remediate.Remediator
	scorer     *score.Scorer
	biasOpts   []bias.Option
	modeler    modeling.Service
	narrator   narrate.Narrator
	tracer     trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRemediator replaces the default median/mode remediator.
func WithRemediator(r *remediate.Remediator) Option {
	return func(o *Orchestrator) { o.remediator = r }
}

// WithScorer replaces the default scorer.
func WithScorer(s *score.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithPrivilegePolicy sets how bias analysis picks the groups it compares.
func WithPrivilegePolicy(p bias.PrivilegePolicy) Option {
	return func(o *Orchestrator) { o.biasOpts = append(o.biasOpts, bias.WithPolicy(p)) }
}

// WithModeler sets the Model Diagnostics Service. A nil service skips the
// modeling stage.
func WithModeler(m modeling.Service) Option {
	return func(o *Orchestrator) { o.modeler = m }
}

// WithNarrator enables the executive summary.
func WithNarrator(n narrate.Narrator) Option {
	return func(o *Orchestrator) { o.narrator = n }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

// New returns an Orchestrator with the local baseline modeler, the default
// scoring policy and no narrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remediator: remediate.New(),
		scorer:     score.New(score.DefaultPolicy()),
		modeler:    modeling.NewBaseline(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// With returns a copy of o with opts applied.
func (o *Orchestrator) With(opts ...Option) *Orchestrator {
	c := *o
	c.biasOpts = append([]bias.Option(nil), o.biasOpts...)
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// run carries the per-invocation state shared by stages.
type run struct {
	id       string
	progress chan<- pkgEvents.Event
	tracer   trace.Tracer
}

func (r *run) emit(e pkgEvents.Event) {
	if r.progress == nil {
		return
	}
	e.RunID = r.id
	e.Timestamp = time.Now()
	if e.Stage != "" {
		e.StageIndex = Stage(e.Stage).index()
		e.TotalStages = len(Stages)
	}
	r.progress <- e
}

// stage runs fn as the named stage: it opens a span, emits progress,
// recovers panics and converts errors into a failed Result.
func stage[T any](ctx context.Context, r *run, s Stage, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	ctx, span := r.tracer.Start(ctx, "stage."+string(s), trace.WithAttributes(
		attribute.String("run_id", r.id),
		attribute.String("stage", string(s)),
	))
	defer span.End()

	start := time.Now()
	r.emit(pkgEvents.Event{Type: pkgEvents.EventStageStarted, Stage: string(s)})

	defer func() {
		if p := recover(); p != nil {
			res = Failed[T](s, fmt.Errorf("panic: %v", p))
		}
		elapsed := time.Since(start)
		switch res.Status() {
		case StatusFailed:
			span.RecordError(res.Err.Err)
			span.SetStatus(codes.Error, res.Err.Err.Error())
			log.Warn().
				Err(res.Err.Err).
				Str("run_id", r.id).
				Str("stage", string(s)).
				Dur("duration", elapsed).
				Msg("Stage failed")
			r.emit(pkgEvents.Event{Type: pkgEvents.EventStageFailed, Stage: string(s), Duration: elapsed, Error: res.Err.Err.Error()})
		case StatusSkipped:
			r.emit(pkgEvents.Event{Type: pkgEvents.EventStageSkipped, Stage: string(s), Duration: elapsed, Text: res.Skipped})
		default:
			log.Debug().
				Str("run_id", r.id).
				Str("stage", string(s)).
				Dur("duration", elapsed).
				Msg("Stage completed")
			r.emit(pkgEvents.Event{Type: pkgEvents.EventStageCompleted, Stage: string(s), Duration: elapsed})
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return Failed[T](s, err)
	}
	return Ok(v)
}

func skipStage[T any](r *run, s Stage, reason string) Result[T] {
	r.emit(pkgEvents.Event{Type: pkgEvents.EventStageStarted, Stage: string(s)})
	r.emit(pkgEvents.Event{Type: pkgEvents.EventStageSkipped, Stage: string(s), Text: reason})
	return Skip[T](reason)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// Run executes the pipeline. Only input that cannot be analyzed at all is
// returned as an error: an empty dataset (*dataset.MalformedInputError), a
// missing target (*schema.InvalidTargetError) or an invalid request. Events
// are sent to progress when it is not nil; the channel is not closed.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress chan<- pkgEvents.Event) (*Report, error) {
	return o.RunWithID(ctx, NewRunID(), req, progress)
}

// RunWithID is Run with a caller-chosen run identifier.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, req Request, progress chan<- pkgEvents.Event) (*Report, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	r := &run{id: runID, progress: progress, tracer: o.tracer}
	ctx, span := o.tracer.Start(ctx, "cortex.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("target", req.Target),
		attribute.Int("rows", req.Data.Len()),
		attribute.Int("columns", req.Data.Width()),
	))
	defer span.End()

	start := time.Now()
	r.emit(pkgEvents.Event{Type: pkgEvents.EventRunStarted, Text: req.Name})
	log.Info().
		Str("run_id", runID).
		Int("rows", req.Data.Len()).
		Int("columns", req.Data.Width()).
		Msg("Diagnostic run started")

	fail := func(err error) (*Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("run_id", runID).Msg("Diagnostic run failed")
		r.emit(pkgEvents.Event{Type: pkgEvents.EventRunFailed, Error: err.Error(), Duration: time.Since(start)})
		return nil, err
	}

	d := req.Data
	if d.Len() == 0 || d.Width() == 0 {
		return fail(&dataset.MalformedInputError{Reason: dataset.ReasonEmpty})
	}

	rep := &Report{
		RunID:          runID,
		Dataset:        DatasetInfo{Name: req.Name, Rows: d.Len(), Columns: d.Width()},
		Target:         req.Target,
		Protected:      append([]string{}, req.Protected...),
		StartedAt:      start,
		Interpretation: msgRunFailed,
		healed:         d,
	}

	rep.Schema = stage(ctx, r, StageSchema, func(context.Context) (*schema.Schema, error) {
		return schema.Infer(d, req.Target)
	})
	if rep.Schema.Err != nil {
		var target *schema.InvalidTargetError
		if errors.As(rep.Schema.Err, &target) {
			return fail(target)
		}
	}
	targetIsNumeric := o.targetIsNumeric(rep, d, req.Target)

	rep.Remediation = stage(ctx, r, StageRemediation, func(context.Context) (*remediate.Summary, error) {
		healed, summary, err := o.remediator.Heal(d, req.Target)
		if err != nil {
			return nil, err
		}
		rep.healed = healed
		return summary, nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep.Health = stage(gctx, r, StageHealth, func(context.Context) (health.Report, error) {
			return health.Analyze(d), nil
		})
		return nil
	})
	g.Go(func() error {
		rep.Imbalance = stage(gctx, r, StageImbalance, func(context.Context) (imbalance.Report, error) {
			return imbalance.Analyze(d, req.Target, targetIsNumeric), nil
		})
		return nil
	})
	g.Go(func() error {
		if len(req.Protected) == 0 {
			rep.Bias = skipStage[*bias.Report](r, StageBias, MsgBiasSkipped)
			return nil
		}
		rep.Bias = stage(gctx, r, StageBias, func(context.Context) (*bias.Report, error) {
			opts := append([]bias.Option{bias.WithPositiveLabel(req.PositiveLabel)}, o.biasOpts...)
			return bias.New(opts...).Analyze(d, req.Target, req.Protected), nil
		})
		return nil
	})
	g.Go(func() error {
		rep.Profile = stage(gctx, r, StageProfile, func(context.Context) (*profile.Profile, error) {
			if !rep.Schema.OK() {
				return nil, errors.New("schema unavailable")
			}
			return profile.Build(d, rep.Schema.Value), nil
		})
		return nil
	})
	_ = g.Wait()

	rep.Modeling = o.model(ctx, r, rep)
	o.score(ctx, r, rep)

	if o.narrator == nil {
		rep.Narrative = skipStage[string](r, StageNarrative, MsgNarrativeDisabled)
	} else {
		rep.Narrative = stage(ctx, r, StageNarrative, func(ctx context.Context) (string, error) {
			return o.narrator.Narrate(ctx, rep.Facts())
		})
	}

	rep.FinishedAt = time.Now()
	rep.Duration = rep.FinishedAt.Sub(start)
	span.SetAttributes(attribute.Int("health_score", rep.HealthScore))

	failed := len(rep.Failures())
	log.Info().
		Str("run_id", runID).
		Dur("duration", rep.Duration).
		Int("health_score", rep.HealthScore).
		Int("failed_stages", failed).
		Msg("Diagnostic run completed")
	r.emit(pkgEvents.Event{
		Type:     pkgEvents.EventRunCompleted,
		Duration: rep.Duration,
		Metadata: map[string]any{"health_score": rep.HealthScore, "failed_stages": failed},
	})
	return rep, nil
}

func (o *Orchestrator) targetIsNumeric(rep *Report, d *dataset.Dataset, target string) bool {
	if rep.Schema.OK() {
		return rep.Schema.Value.TargetIsNumeric()
	}
	col, ok := d.Column(target)
	if !ok {
		return false
	}
	c := schema.Classify(col)
	return c.Type == schema.Numeric && !c.Binary
}

// model runs the Model Diagnostics Service on the healed data. It needs a
// schema and a usable imbalance result.
func (o *Orchestrator) model(ctx context.Context, r *run, rep *Report) Result[*modeling.Result] {
	if o.modeler == nil {
		return skipStage[*modeling.Result](r, StageModeling, MsgModelingDisabled)
	}
	return stage(ctx, r, StageModeling, func(ctx context.Context) (*modeling.Result, error) {
		_, critical := rep.Imbalance.Value.(*imbalance.Critical)
		if !rep.Schema.OK() || !rep.Imbalance.OK() || critical {
			return nil, errors.New(MsgModelingPrerequisites)
		}
		return o.modeler.Diagnose(ctx, modeling.NewRequest(rep.healed, rep.Schema.Value))
	})
}

// score needs the health and imbalance results. On failure the score stays
// at zero and the interpretation carries the reason.
func (o *Orchestrator) score(ctx context.Context, r *run, rep *Report) {
	rep.Score = stage(ctx, r, StageScore, func(context.Context) (score.Result, error) {
		switch {
		case !rep.Health.OK():
			return score.Result{}, fmt.Errorf(msgScoreFailed, "health analysis unavailable")
		case !rep.Imbalance.OK():
			return score.Result{}, fmt.Errorf(msgScoreFailed, "imbalance analysis unavailable")
		}
		return o.scorer.Score(rep.Health.Value, rep.Imbalance.Value, rep.Dataset.Rows), nil
	})
	if rep.Score.OK() {
		rep.HealthScore = rep.Score.Value.Score
		rep.Interpretation = rep.Score.Value.Interpretation
		return
	}
	rep.HealthScore = 0
	rep.Interpretation = rep.Score.Message()
	if !strings.HasPrefix(rep.Interpretation, "Score calculation failed: ") {
		rep.Interpretation = fmt.Sprintf(msgScoreFailed, rep.Interpretation)
	}
}
