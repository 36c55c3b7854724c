package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theory-cloud/musicapi/pkg/schedule"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Work with EventBridge schedule expressions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <expression>",
		Short: "Check a rate(...) or cron(...) expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := schedule.Kind(args[0])
			if kind == "" {
				return fmt.Errorf("%w: %q", schedule.ErrInvalidExpression, args[0])
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "valid %s expression\n", kind)
			return err
		},
	})
	return cmd
}
