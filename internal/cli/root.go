package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harshitk-cp/dissent/internal/api"
	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/config"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/llm"
	"github.com/Harshitk-cp/dissent/internal/service"
)

var (
	envFile string
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "dissent",
	Short: "Multi-analyst incident triage with measured disagreement",
	Long: `dissent runs a panel of independent analysts over an incident report,
measures how much they agree, and records every artifact so a decision can
be replayed and verified later.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&envFile, "env", "", "env file to load (default $DISSENT_ENV or .env)")
	f.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	f.BoolVar(&jsonOut, "json", false, "print JSON instead of tables")
	f.String("artifact-dir", "", "artifact root directory")
	f.String("provider", "", "LLM provider (openai, anthropic, gemini, cerebras, mock)")
	f.String("model", "", "LLM model")
	f.String("log-level", "", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag(config.KeyArtifactDir, f.Lookup("artifact-dir"))
	_ = viper.BindPFlag(config.KeyLLMProvider, f.Lookup("provider"))
	_ = viper.BindPFlag(config.KeyLLMModel, f.Lookup("model"))
	_ = viper.BindPFlag(config.KeyLogLevel, f.Lookup("log-level"))

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig(_ *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := os.Setenv("DISSENT_ENV", envFile); err != nil {
			return err
		}
	}
	return config.Load()
}

// newLogger writes to stderr so command output stays machine readable.
// Without --verbose only warnings and errors are shown.
func newLogger() *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	} else if lvl, err := zapcore.ParseLevel(config.LogLevel()); err == nil && lvl > level {
		level = lvl
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openStore() (*artifact.Store, error) {
	return artifact.NewStore(config.ArtifactDir())
}

// newReplayService needs no LLM credentials: replay works on stored
// artifacts only.
func newReplayService(logger *zap.Logger) (*service.ReplayService, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return service.NewReplayService(store, config.ConvergenceThresholds(), nil, logger), nil
}

func newAnalysisService(logger *zap.Logger) (*service.AnalysisService, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey(), config.LLMModel())
	if err != nil {
		return nil, err
	}
	panel, err := api.BuildPanel(client, logger)
	if err != nil {
		return nil, err
	}
	engine := convergence.New(config.ConvergenceThresholds())
	return service.NewAnalysisService(panel, engine, store, nil, nil, logger, service.AnalysisOptions{
		Calibrate:         config.EnableCalibration(),
		CalibrationFactor: config.CalibrationFactor(),
	}), nil
}
