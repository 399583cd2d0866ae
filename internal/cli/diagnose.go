package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/report"
	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

// diagnoseCmd represents the diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [dataset]",
	Short: "Run the full diagnostic pipeline on a dataset",
	Long: `Run every diagnostic stage on a CSV dataset and print the report.

The dataset may be a local path, an http(s):// URL or an s3://bucket/key
object. Stages that fail are reported in place and never stop the others;
only an empty dataset or a missing target column aborts the run.

Examples:
  cortex diagnose loans.csv --target approved
  cortex diagnose loans.csv --target approved --protected gender,region
  cortex diagnose s3://datasets/loans.csv --target approved --format json
  cortex diagnose loans.csv --target approved --modeler none --format markdown
  cortex diagnose loans.csv --target approved --narrate anthropic`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiagnose(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], diagnoseOpts)
	},
}

type diagnoseOptions struct {
	pipelineOptions

	target        string
	protected     []string
	positiveLabel string
	format        string
	timeout       time.Duration
	trace         bool
	quiet         bool
}

var diagnoseOpts = &diagnoseOptions{}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().StringVarP(&diagnoseOpts.target, "target", "t", "", "target column (required)")
	diagnoseCmd.Flags().StringSliceVarP(&diagnoseOpts.protected, "protected", "p", nil, "protected attributes to audit for bias")
	diagnoseCmd.Flags().StringVar(&diagnoseOpts.positiveLabel, "positive-label", "", "favourable target value for bias analysis")
	diagnoseCmd.Flags().StringVarP(&diagnoseOpts.format, "format", "f", "", "report format (text, markdown, json, yaml); defaults to --output")
	diagnoseCmd.Flags().DurationVar(&diagnoseOpts.timeout, "timeout", 30*time.Minute, "overall run timeout")
	diagnoseCmd.Flags().BoolVar(&diagnoseOpts.trace, "trace", false, "print pipeline spans to stderr")
	diagnoseOpts.addFlags(diagnoseCmd, modelerLocal)

	_ = diagnoseCmd.MarkFlagRequired("target")
}

func runDiagnose(ctx context.Context, stdout, stderr io.Writer, location string, opts *diagnoseOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format := opts.format
	if format == "" {
		format = viper.GetString("output")
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	var extra []engine.Option
	if opts.trace {
		tracing, shutdown, err := stdoutTracing(stderr)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
		extra = append(extra, tracing)
	}

	o, err := opts.orchestrator(extra...)
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
	log.Info().
		Str("dataset", location).
		Int("rows", d.Len()).
		Int("columns", d.Width()).
		Msg("Dataset loaded")

	var listener pkgEvents.Listener
	if !opts.quiet && !viper.GetBool("quiet") && f == report.FormatText {
		listener = engine.NewProgressTracker(stderr)
	}

	rep, err := engine.NewRunner(o, listener).Run(ctx, engine.Request{
		Data:          d,
		Name:          path.Base(location),
		Target:        opts.target,
		Protected:     opts.protected,
		PositiveLabel: opts.positiveLabel,
	})
	if err != nil {
		return fmt.Errorf("diagnose %s: %w", location, err)
	}

	if f == report.FormatText {
		fmt.Fprintln(stderr)
	}
	return report.Render(stdout, rep, f)
}
