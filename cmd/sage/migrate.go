package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newServices(cc)
			if err := s.start(cmd.Context(), true, depDatabase); err != nil {
				return err
			}
			return s.stop(cmd.Context())
		},
	}
}
