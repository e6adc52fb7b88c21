package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/okian/dosewatch/pkg/logger"
)

func newOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single detection cycle, deliver its alerts and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			report, err := c.svc.RunOnce(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
