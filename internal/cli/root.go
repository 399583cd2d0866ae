package cli

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/cortex/internal/style"
)

var (
	// Global flags
	cfgFile      string
	logLevel     string
	outputFormat string
	quiet        bool
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "CORTEX - know what is wrong with a dataset before you train on it",
	Long: `CORTEX diagnoses tabular datasets before they are used for machine learning.

It infers a schema, repairs missing values, measures data health, class
imbalance and bias across protected attributes, runs a baseline model to
spot target leakage, and condenses everything into a single health score.

Configuration is read from $HOME/.cortex/config.yaml, a .env file and
CORTEX_ prefixed environment variables.`,
	Version: getVersion(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
		go triggerBackgroundUpdateCheck()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		showUpdateNotificationIfAvailable(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd, fang.WithColorSchemeFunc(func(lightDark lipgloss.LightDarkFunc) fang.ColorScheme {
		return fang.ColorScheme{
			Base:           style.PrimaryTextColor,
			Title:          style.AccentColor,
			Description:    style.PrimaryTextColor,
			Codeblock:      style.MutedColor,
			Program:        style.AccentColor,
			DimmedArgument: style.MutedColor,
			Comment:        style.MutedColor,
			Flag:           style.InfoColor,
			FlagDefault:    style.MutedColor,
			Command:        style.SuccessColor,
			QuotedString:   style.WarningColor,
			Argument:       style.PrimaryTextColor,
			Help:           style.InfoColor,
			Dash:           style.MutedColor,
			ErrorHeader:    [2]color.Color{style.ErrorColor, style.ErrorBgColor},
			ErrorDetails:   style.ErrorColor,
		}
	}))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cortex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "disabled", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "text", "output format (text, markdown, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress and non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".cortex"))
		viper.AddConfigPath(".")
		viper.AddConfigPath(".cortex")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// nested keys such as modeler.base_url map to CORTEX_MODELER_BASE_URL
	viper.SetEnvPrefix("CORTEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if !viper.GetBool("quiet") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// initLogging configures the global logger
func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := viper.GetString("log-level")
	if viper.GetBool("verbose") && (level == "" || level == "disabled") {
		level = "info"
	}
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	// machine readable output keeps JSON logs on stderr
	if !viper.GetBool("quiet") && viper.GetString("output") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// getVersion returns the version information
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

// triggerBackgroundUpdateCheck refreshes the update cache in the background.
// It never prints.
func triggerBackgroundUpdateCheck() {
	if os.Getenv("CORTEX_TEST") == "true" || os.Getenv("CORTEX_NO_UPDATE_CHECK") != "" {
		return
	}
	checkForUpdate(&cobra.Command{}, false)
}

// showUpdateNotificationIfAvailable prints a one line notice when the cached
// release information is newer than this binary.
func showUpdateNotificationIfAvailable(cmd *cobra.Command) {
	if viper.GetBool("quiet") {
		return
	}

	updateInfo := ShouldShowUpdateNotification()
	if updateInfo != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%s A newer version (%s) is available! Run 'cortex update' to upgrade.\n",
			style.InfoIcon(), updateInfo.LatestVersion)
	}
}
