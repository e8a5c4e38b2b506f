package main

import (
	"github.com/spf13/cobra"
)

func newSweepCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Auto-approve expired review items and relay sync requests once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := newServices(cc)
			if err := s.start(ctx, false, depTracing, depDatabase, depRedis, depKafka); err != nil {
				return err
			}
			defer s.stop(ctx)

			result := s.autoApprover(s.repositories()).RunOnce(ctx)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
