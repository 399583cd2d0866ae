// Package cortex provides a public API for running CORTEX dataset
// diagnostics programmatically.
//
// The main functionality includes:
//   - Diagnosing a CSV dataset read from any io.Reader or a file
//   - Configuring the pipeline through functional options
//   - Monitoring run progress through event listeners
//
// Example usage:
//
//	f, err := os.Open("loans.csv")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Close()
//
//	report, err := cortex.Diagnose(ctx, f, "approved", cortex.WithProtected("gender"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(report.HealthScore, report.Interpretation)
package cortex

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/pkg/events"
)

// Report is the assembled result of a diagnostic run. Every stage result
// carries either a value or the error that stage produced.
type Report = engine.Report

type config struct {
	listener      events.Listener
	name          string
	protected     []string
	positiveLabel string
	orchestrator  []engine.Option
}

// Option configures a diagnostic run.
type Option func(*config)

// WithProgressListener registers a listener that receives the run and
// stage events of the run as they happen.
//
// Example:
//
//	collector := events.NewCollector()
//	report, err := cortex.Diagnose(ctx, f, "approved", cortex.WithProgressListener(collector))
func WithProgressListener(listener events.Listener) Option {
	return func(c *config) {
		c.listener = listener
	}
}

// WithProtected names the protected attributes audited for bias.
func WithProtected(attributes ...string) Option {
	return func(c *config) {
		c.protected = append(c.protected, attributes...)
	}
}

// WithPositiveLabel sets the favourable target value used by the bias
// analysis. By default it is inferred from the target.
func WithPositiveLabel(label string) Option {
	return func(c *config) {
		c.positiveLabel = label
	}
}

// WithName sets the dataset name shown in the report.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithKNNImputation fills numeric gaps from the k nearest rows instead of
// the column median.
func WithKNNImputation() Option {
	return func(c *config) {
		c.orchestrator = append(c.orchestrator,
			engine.WithRemediator(remediate.New(remediate.WithStrategy(remediate.StrategyKNN))))
	}
}

// WithBaselineTrees sets the number of trees of the in-process baseline
// model.
func WithBaselineTrees(n int) Option {
	return func(c *config) {
		c.orchestrator = append(c.orchestrator, engine.WithModeler(modeling.NewBaseline(modeling.WithTrees(n))))
	}
}

// WithoutModeling skips the model diagnostics stage. The report records
// the stage as skipped.
func WithoutModeling() Option {
	return func(c *config) {
		c.orchestrator = append(c.orchestrator, engine.WithModeler(nil))
	}
}

// Diagnose reads a CSV dataset from r and runs every diagnostic stage on
// it.
//
// Only input that cannot be analyzed at all is returned as an error: a
// malformed or empty CSV, or a target column that does not exist. Stage
// failures are recorded in the report and never stop the other stages.
func Diagnose(ctx context.Context, r io.Reader, target string, options ...Option) (*Report, error) {
	c := &config{}
	for _, option := range options {
		option(c)
	}

	d, err := dataset.ReadCSV(r)
	if err != nil {
		return nil, err
	}

	runner := engine.NewRunner(engine.New(c.orchestrator...), c.listener)
	return runner.Run(ctx, engine.Request{
		Data:          d,
		Name:          c.name,
		Target:        target,
		Protected:     c.protected,
		PositiveLabel: c.positiveLabel,
	})
}

// DiagnoseFile is Diagnose on a local CSV file. The file name is used as
// the dataset name unless WithName is given.
func DiagnoseFile(ctx context.Context, path, target string, options ...Option) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return Diagnose(ctx, f, target, append([]Option{WithName(filepath.Base(path))}, options...)...)
}
