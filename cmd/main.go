package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/dosewatch/internal/config"
	"github.com/okian/dosewatch/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dosewatch",
		Short: "Missed-dose detection and caregiver alerting engine",
		Long: `dosewatch scans active medication schedules, detects doses that were not
confirmed within the grace period and alerts the patient's caregiver once per
missed dose.`,
		SilenceUsage: true,
	}

	// Global config flag, available for all commands.
	root.PersistentFlags().String("config", "", "YAML config file (defaults to $DOSEWATCH_CONFIG)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newOnceCommand())
	root.AddCommand(newMigrateCommand())

	return root
}

// setup loads configuration (defaults -> optional file -> env) and
// initializes logging from it.
func setup(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(
		logger.WithFormat(cfg.LogFormat),
		logger.WithOutput(cmd.ErrOrStderr()),
		logger.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays),
	); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	return cfg, nil
}
