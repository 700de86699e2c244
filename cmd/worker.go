package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-pipeline/internal/server"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "worker <name>...",
		Short:     "Runs stage workers",
		Long:      "Runs the named stage workers (" + strings.Join(server.WorkerNames, ", ") + ", or all) until interrupted.",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: append([]string{server.WorkerAll}, server.WorkerNames...),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.RunWorkers(cmd.Context(), args...)
		},
	}
}
