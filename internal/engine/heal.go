package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/schema"
)

// HealResult is the outcome of Heal.
type HealResult struct {
	Healed        *dataset.Dataset
	Schema        *schema.Schema
	Summary       *remediate.Summary
	RowsBefore    int
	MissingBefore int
	MissingAfter  int
	// MissingByColumn counts gaps per column of the input. When the input
	// has none, the first five columns are listed with zero.
	MissingByColumn map[string]int
	// Model is the baseline evaluation of the healed data, nil when the
	// modeler is disabled or failed.
	Model      *modeling.Result
	ModelError string
}

// Heal runs schema inference and remediation only, then evaluates the
// healed data with the configured modeler when there is one.
func (o *Orchestrator) Heal(ctx context.Context, d *dataset.Dataset, target string) (*HealResult, error) {
	if d == nil || d.Len() == 0 || d.Width() == 0 {
		return nil, &dataset.MalformedInputError{Reason: dataset.ReasonEmpty}
	}
	s, err := schema.Infer(d, target)
	if err != nil {
		return nil, err
	}
	healed, summary, err := o.remediator.Heal(d, target)
	if err != nil {
		return nil, fmt.Errorf("heal dataset: %w", err)
	}

	res := &HealResult{
		Healed:          healed,
		Schema:          s,
		Summary:         summary,
		RowsBefore:      d.Len(),
		MissingBefore:   d.NullCount(),
		MissingAfter:    healed.NullCount(),
		MissingByColumn: missingByColumn(d),
	}

	if o.modeler != nil {
		m, err := o.modeler.Diagnose(ctx, modeling.NewRequest(healed, s))
		if err != nil {
			res.ModelError = err.Error()
			log.Warn().Err(err).Msg("Baseline evaluation of healed data failed")
		} else {
			res.Model = m
		}
	}

	log.Info().
		Int("rows", healed.Len()).
		Int("dropped_rows", summary.DroppedRows).
		Int("missing_before", res.MissingBefore).
		Int("missing_after", res.MissingAfter).
		Msg("Dataset healed")
	return res, nil
}

func missingByColumn(d *dataset.Dataset) map[string]int {
	out := make(map[string]int)
	for _, name := range d.Columns() {
		col, _ := d.Column(name)
		if n := col.NullCount(); n > 0 {
			out[name] = n
		}
	}
	if len(out) > 0 {
		return out
	}
	for i, name := range d.Columns() {
		if i == 5 {
			break
		}
		out[name] = 0
	}
	return out
}
