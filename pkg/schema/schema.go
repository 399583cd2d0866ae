// Package schema describes the output of CORTEX: the JSON schema of the
// diagnostic report and the names of the stages, formats and strategies
// that appear in it. It is meant for tools that consume reports, such as
// dashboards and validators.
//
// Example usage:
//
//	s, err := schema.GetSchema()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(s.Stages)
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/narrate"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/report"
)

// SchemaOutput is the description of a diagnostic report.
type SchemaOutput struct {
	// Schema is the JSON schema of the JSON report encoding.
	Schema json.RawMessage `json:"schema"`

	// Stages lists the report stages in pipeline order.
	Stages []string `json:"stages"`

	// Formats lists the report renderings.
	Formats []string `json:"formats"`

	// Strategies lists the numeric imputation strategies.
	Strategies []string `json:"strategies"`

	// Narrators lists the LLM providers that can write the executive
	// summary.
	Narrators []string `json:"narrators"`
}

// GetSchema returns the description of the diagnostic report.
func GetSchema() (*SchemaOutput, error) {
	b, err := report.Schema()
	if err != nil {
		return nil, fmt.Errorf("error creating report schema: %w", err)
	}

	out := &SchemaOutput{
		Schema:     json.RawMessage(b),
		Strategies: []string{string(remediate.StrategyMedian), string(remediate.StrategyKNN)},
		Narrators:  []string{narrate.ProviderAnthropic, narrate.ProviderOpenAI},
	}
	for _, s := range engine.Stages {
		out.Stages = append(out.Stages, string(s))
	}
	for _, f := range report.Formats {
		out.Formats = append(out.Formats, string(f))
	}
	return out, nil
}
