// Package cmd defines the CLI commands of the crawl-pipeline executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-pipeline/internal/config"
	"github.com/JakeFAU/crawl-pipeline/internal/server"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the composition root.
type App interface {
	Run(ctx context.Context) error
	RunWorkers(ctx context.Context, names ...string) error
	Migrate(ctx context.Context) error
	Cleanup(ctx context.Context, jobID int64) error
	Close(ctx context.Context) error
}

// newApp is a variable so tests can inject a fake.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl-pipeline",
		Short: "Job dispatcher, stage workers and deletion for the crawl pipeline.",
		Long: `crawl-pipeline accepts crawl jobs over HTTP, runs the extractor, explainer,
summarizer and deletion stage workers against the message queue, and cleans up
everything a job produced when it is deleted.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables use the PIPELINE_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCleanupCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
