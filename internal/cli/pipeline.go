package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/narrate"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/score"
	"github.com/lacquerai/cortex/internal/source"
)

const (
	modelerLocal  = "local"
	modelerRemote = "remote"
	modelerNone   = "none"
)

// pipelineOptions are the flags shared by every command that builds an
// orchestrator.
type pipelineOptions struct {
	policyFile string
	knn        bool
	modeler    string
	trees      int
	narrator   string
}

func (p *pipelineOptions) addFlags(cmd *cobra.Command, defaultModeler string) {
	cmd.Flags().StringVar(&p.policyFile, "policy", "", "YAML scoring policy overriding the default weights and bands")
	cmd.Flags().BoolVar(&p.knn, "knn", false, "fill numeric gaps with k-nearest-neighbour imputation instead of the median")
	cmd.Flags().StringVar(&p.modeler, "modeler", defaultModeler, "model diagnostics service (local, remote, none)")
	cmd.Flags().IntVar(&p.trees, "trees", 0, "number of trees in the local baseline forest (default 100)")
	cmd.Flags().StringVar(&p.narrator, "narrate", "", "write an executive summary with an LLM (anthropic, openai)")
}

// orchestrator builds an engine.Orchestrator from the flags and the
// modeler, narrator and policy sections of the configuration.
func (p *pipelineOptions) orchestrator(extra ...engine.Option) (*engine.Orchestrator, error) {
	var opts []engine.Option

	if p.knn {
		opts = append(opts, engine.WithRemediator(remediate.New(remediate.WithStrategy(remediate.StrategyKNN))))
	}

	policyFile := p.policyFile
	if policyFile == "" {
		policyFile = viper.GetString("policy")
	}
	if policyFile != "" {
		policy, err := score.LoadPolicy(policyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithScorer(score.New(policy)))
	}

	modeler, err := p.modelingService()
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithModeler(modeler))

	if p.narrator != "" {
		cfg := narrate.Config{}
		if err := viper.UnmarshalKey("narrator", &cfg); err != nil {
			return nil, fmt.Errorf("invalid narrator configuration: %w", err)
		}
		cfg.Provider = p.narrator
		n, err := narrate.New(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithNarrator(n))
	}

	return engine.New(append(opts, extra...)...), nil
}

// modelingService returns nil when modeling is disabled.
func (p *pipelineOptions) modelingService() (modeling.Service, error) {
	switch strings.ToLower(p.modeler) {
	case modelerLocal, "":
		var opts []modeling.BaselineOption
		if p.trees > 0 {
			opts = append(opts, modeling.WithTrees(p.trees))
		}
		return modeling.NewBaseline(opts...), nil
	case modelerRemote:
		cfg := modeling.DefaultClientConfig()
		if err := viper.UnmarshalKey("modeler", &cfg); err != nil {
			return nil, fmt.Errorf("invalid modeler configuration: %w", err)
		}
		client, err := modeling.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w (set modeler.base_url or CORTEX_MODELER_BASE_URL)", err)
		}
		return client, nil
	case modelerNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown modeler %q (want local, remote or none)", p.modeler)
}

// newOpener returns a dataset opener configured from the s3 section of the
// configuration.
func newOpener() (*source.Opener, error) {
	var s3 source.S3Config
	if err := viper.UnmarshalKey("s3", &s3); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}
	return source.New(source.WithS3(s3), source.WithMaxBytes(viper.GetInt64("max_dataset_bytes"))), nil
}

// stdoutTracing exports pipeline spans to w. The returned function flushes
// and stops the exporter.
func stdoutTracing(w io.Writer) (engine.Option, func(context.Context), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	shutdown := func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush trace exporter")
		}
	}
	return engine.WithTracerProvider(tp), shutdown, nil
}
