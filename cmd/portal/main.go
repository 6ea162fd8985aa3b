package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vaidashi/support-portal/internal/config"
	"github.com/vaidashi/support-portal/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds what every subcommand needs
type runtime struct {
	cfg    *config.Config
	logger logger.Logger
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "portal",
		Short:         "Order tracking support portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()

			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if driver, _ := cmd.Flags().GetString("store"); driver != "" {
				cfg.StoreDriver = driver
			}

			rt.cfg = cfg
			rt.logger = logger.NewLogger(cfg.LogLevel, cfg.Env)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().String("store", "", "order store driver (postgres or memory), overrides STORE_DRIVER")

	root.AddCommand(
		newServeCmd(rt),
		newMigrateCmd(rt),
		newReportCmd(rt),
	)

	return root
}
