package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/abtest/internal/config"
	"example.com/abtest/internal/logger"
)

// NewRootCmd builds the command tree. Configuration is loaded once before any
// subcommand runs.
func NewRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:   "abtest-api",
		Short: "Pricing A/B test assignment, event recording and reporting",
		Long: `abtest-api assigns visitors to pricing variant A or B, records their
exposures, clicks and enrollments, and reports conversion per variant and course.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return logger.Init(cfg.AppName, cfg.AppEnv, cfg.LogLevel)
		},
	}
	cfgFn := func() config.Config { return cfg }
	root.AddCommand(newServeCmd(cfgFn), newMigrateCmd(cfgFn), newReportCmd(cfgFn))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
