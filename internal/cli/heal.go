package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/style"
)

// healCmd represents the heal command
var healCmd = &cobra.Command{
	Use:   "heal [dataset]",
	Short: "Fill the missing values of a dataset",
	Long: `Fill every missing value of a CSV dataset and write the healed copy.

Rows with a missing target are dropped. Numeric gaps are filled with the
column median (or k-nearest neighbours with --strategy knn), categorical
gaps with the most frequent value. The target defaults to the last column.

Without --out the healed CSV is written to stdout. With --out a summary of
the changes is printed instead.

Examples:
  cortex heal loans.csv > healed.csv
  cortex heal loans.csv --target approved --out healed.csv
  cortex heal loans.csv --strategy knn --diff
  cortex heal loans.csv --out healed.csv --evaluate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHeal(cmd.Context(), cmd.OutOrStdout(), args[0], healOpts)
	},
}

type healOptions struct {
	target   string
	out      string
	strategy string
	diff     bool
	evaluate bool
}

var healOpts = &healOptions{}

func init() {
	rootCmd.AddCommand(healCmd)

	healCmd.Flags().StringVarP(&healOpts.target, "target", "t", "", "target column (default: last column)")
	healCmd.Flags().StringVarP(&healOpts.out, "out", "o", "", "write the healed CSV to this file")
	healCmd.Flags().StringVar(&healOpts.strategy, "strategy", string(remediate.StrategyMedian), "numeric fill strategy (median, knn)")
	healCmd.Flags().BoolVar(&healOpts.diff, "diff", false, "print a line diff between the original and healed CSV")
	healCmd.Flags().BoolVar(&healOpts.evaluate, "evaluate", false, "score the healed data with the local baseline model")
}

// healSummary is printed when the healed data goes to a file.
type healSummary struct {
	Output        string             `json:"output" yaml:"output"`
	Target        string             `json:"target" yaml:"target"`
	Rows          int                `json:"rows" yaml:"rows"`
	RowsAfter     int                `json:"rows_after" yaml:"rows_after"`
	MissingBefore int                `json:"missing_before" yaml:"missing_before"`
	MissingAfter  int                `json:"missing_after" yaml:"missing_after"`
	Remediation   *remediate.Summary `json:"remediation" yaml:"remediation"`
	Accuracy      *float64           `json:"baseline_score,omitempty" yaml:"baseline_score,omitempty"`
	ModelError    string             `json:"model_error,omitempty" yaml:"model_error,omitempty"`
}

func runHeal(ctx context.Context, stdout io.Writer, location string, opts *healOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	strategy, err := remediate.ParseStrategy(strings.ToLower(opts.strategy))
	if err != nil {
		return err
	}

	opener, err := newOpener()
	if err != nil {
		return err
	}
	d, err := opener.Load(ctx, location)
	if err != nil {
		return err
	}

	target := opts.target
	if target == "" {
		columns := d.Columns()
		target = columns[len(columns)-1]
	}

	pipeline := &pipelineOptions{modeler: modelerNone}
	if opts.evaluate {
		pipeline.modeler = modelerLocal
	}
	o, err := pipeline.orchestrator(engine.WithRemediator(remediate.New(remediate.WithStrategy(strategy))))
	if err != nil {
		return err
	}

	res, err := o.Heal(ctx, d, target)
	if err != nil {
		return fmt.Errorf("heal %s: %w", location, err)
	}

	if opts.diff {
		if err := writeDiff(stdout, d, res.Healed); err != nil {
			return err
		}
	}

	if opts.out == "" {
		if opts.diff {
			return nil
		}
		return dataset.WriteCSV(stdout, res.Healed)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := dataset.WriteCSV(f, res.Healed); err != nil {
		f.Close()
		return fmt.Errorf("write healed dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write healed dataset: %w", err)
	}

	summary := healSummary{
		Output:        opts.out,
		Target:        target,
		Rows:          res.RowsBefore,
		RowsAfter:     res.Healed.Len(),
		MissingBefore: res.MissingBefore,
		MissingAfter:  res.MissingAfter,
		Remediation:   res.Summary,
		ModelError:    res.ModelError,
	}
	if res.Model != nil {
		score := res.Model.MeanCVScore
		summary.Accuracy = &score
	}
	printHealSummary(stdout, summary)
	return nil
}

func printHealSummary(w io.Writer, s healSummary) {
	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(w, s)
		return
	case "yaml":
		style.PrintYAML(w, s)
		return
	}

	style.Success(w, fmt.Sprintf("Healed %d of %d missing values, wrote %d rows to %s",
		s.MissingBefore-s.MissingAfter, s.MissingBefore, s.RowsAfter, s.Output))
	if s.Remediation.DroppedRows > 0 {
		style.Warning(w, fmt.Sprintf("Dropped %d rows with a missing %s", s.Remediation.DroppedRows, s.Target))
	}

	rows := make([][]string, 0, len(s.Remediation.Fills))
	for _, fill := range s.Remediation.Fills {
		rows = append(rows, []string{fill.Column, fill.Method, fill.Value, fmt.Sprint(fill.Count)})
	}
	printTable(w, []string{"COLUMN", "METHOD", "VALUE", "FILLED"}, rows)

	if s.Accuracy != nil {
		style.Info(w, fmt.Sprintf("Baseline cross-validation score on healed data: %.4f", *s.Accuracy))
	}
	if s.ModelError != "" {
		style.Warning(w, s.ModelError)
	}
}

// writeDiff prints the CSV lines that healing changed, removed lines first.
func writeDiff(w io.Writer, before, after *dataset.Dataset) error {
	var a, b bytes.Buffer
	if err := dataset.WriteCSV(&a, before); err != nil {
		return err
	}
	if err := dataset.WriteCSV(&b, after); err != nil {
		return err
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(a.String(), b.String())
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	changed := 0
	for _, d := range diffs {
		var prefix string
		var render func(...string) string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix, render = "- ", style.ErrorStyle.Render
		case diffmatchpatch.DiffInsert:
			prefix, render = "+ ", style.SuccessStyle.Render
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			changed++
			fmt.Fprint(w, render(prefix+strings.TrimSuffix(line, "\n"))+"\n")
		}
	}
	if changed == 0 {
		style.Info(w, "No changes")
	}
	return nil
}
