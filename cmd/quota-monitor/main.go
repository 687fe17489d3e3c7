package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/config"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	_ "go.uber.org/automaxprocs"
)

var version = "dev"

type options struct {
	configPath string
	cfg        *config.Config
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "quota-monitor",
		Short:         "Monitor AWS service quota utilization and notify on breaches",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "quota-monitor.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(opts),
		newPollCmd(opts),
		newCatalogCmd(opts),
		newReportCmd(opts),
		newAdvisorCmd(opts),
		newUsageCheckCmd(opts),
		newNotifyCmd(opts),
		newRegionsCmd(opts),
		newServicesCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp wires the application for a single command run.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
