package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/cortex/internal/server"
	"github.com/lacquerai/cortex/internal/style"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP diagnostics API",
	Long: `Start an HTTP server exposing the diagnostic pipeline.

The server provides:
- POST /api/v1/diagnose for synchronous reports
- POST /api/v1/runs with WebSocket progress streaming
- POST /api/v1/heal for missing value repair
- a Prometheus metrics endpoint

Examples:
  cortex serve                           # Listen on localhost:8080
  cortex serve --port 9000 --host 0.0.0.0
  cortex serve --concurrency 8 --modeler remote`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startServer(cmd.OutOrStdout(), serverConfig())
	},
}

var serveOpts = &pipelineOptions{}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := server.DefaultConfig()
	serveCmd.Flags().IntP("port", "p", defaults.Port, "server port")
	serveCmd.Flags().String("host", defaults.Host, "server host")
	serveCmd.Flags().Int("concurrency", defaults.Concurrency, "maximum concurrent diagnostic runs")
	serveCmd.Flags().Duration("timeout", defaults.Timeout, "per-run timeout")
	serveCmd.Flags().Int64("max-upload-bytes", defaults.MaxUploadBytes, "largest accepted dataset upload")
	serveCmd.Flags().Bool("metrics", defaults.EnableMetrics, "enable Prometheus metrics endpoint")
	serveCmd.Flags().Bool("cors", defaults.EnableCORS, "enable CORS headers")
	serveOpts.addFlags(serveCmd, modelerLocal)

	for _, name := range []string{"port", "host", "concurrency", "timeout", "metrics", "cors"} {
		_ = viper.BindPFlag("server."+name, serveCmd.Flags().Lookup(name))
	}
	_ = viper.BindPFlag("server.max_upload_bytes", serveCmd.Flags().Lookup("max-upload-bytes"))
}

// serverConfig reads the server section of the configuration. Flags take
// precedence over the file and the environment.
func serverConfig() *server.Config {
	config := server.DefaultConfig()
	config.Host = viper.GetString("server.host")
	config.Port = viper.GetInt("server.port")
	config.Concurrency = viper.GetInt("server.concurrency")
	config.MaxUploadBytes = viper.GetInt64("server.max_upload_bytes")
	config.EnableMetrics = viper.GetBool("server.metrics")
	config.EnableCORS = viper.GetBool("server.cors")
	if timeout := viper.GetDuration("server.timeout"); timeout > 0 {
		config.Timeout = timeout
	}
	return config
}

func startServer(w io.Writer, config *server.Config) error {
	o, err := serveOpts.orchestrator()
	if err != nil {
		return err
	}

	srv, err := server.New(config, o)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if !viper.GetBool("quiet") {
		style.Success(w, fmt.Sprintf("CORTEX server starting at http://%s", srv.GetAddr()))
		fmt.Fprintf(w, "  API:     http://%s/api/v1/diagnose\n", srv.GetAddr())
		fmt.Fprintf(w, "  Health:  http://%s/health\n", srv.GetAddr())
		if config.EnableMetrics {
			fmt.Fprintf(w, "  Metrics: http://%s/metrics\n", srv.GetAddr())
		}
	}

	return srv.StartWithGracefulShutdown()
}
