package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <job-id>",
		Short: "Deletes a job and everything it produced",
		Long: `Runs the deletion cascade for one job in-process: stored objects, search
documents, child rows, the status record and finally the job row. Safe to
re-run after a partial failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || jobID <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = appInstance.Close(cmd.Context()) }()
			return appInstance.Cleanup(cmd.Context(), jobID)
		},
	}
}
