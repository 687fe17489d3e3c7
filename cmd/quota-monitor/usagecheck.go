package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/aws"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/usagecheck"
)

func newUsageCheckCmd(opts *options) *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "usage-check",
		Short: "Count usage of quotas that have no usage metric and compare it to their limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var errs []error
				for _, r := range a.regions {
					checker := usagecheck.New(usagecheck.Config{
						Region:      r.name,
						Threshold:   a.cfg.Threshold,
						QuotaCodes:  a.cfg.UsageCheck.QuotaCodes,
						Concurrency: a.cfg.MaxConcurrency,
					}, r.fetcher, aws.NewUsageReader(aws.UsageAPIsFrom(r.clients)))

					events, err := checker.Run(ctx)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
					}
					printEvents(cmd, events)
					if publish && len(events) > 0 {
						bus := aws.NewEventPublisher(r.clients.EventBridge, a.cfg.EventBus)
						if err := bus.Publish(ctx, breaching(events, a.cfg.ReportOKNotifications)); err != nil {
							errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
						}
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the events to the event bus")
	return cmd
}

// breaching drops OK events unless they are reported too.
func breaching(events []model.UtilizationEvent, reportOK bool) []model.UtilizationEvent {
	if reportOK {
		return events
	}
	var out []model.UtilizationEvent
	for _, ev := range events {
		if ev.Status != model.StatusOK {
			out = append(out, ev)
		}
	}
	return out
}

func printEvents(cmd *cobra.Command, events []model.UtilizationEvent) {
	for _, ev := range events {
		fmt.Fprintf(cmd.OutOrStdout(), "%-15s %-5s %-12s %-40s %s%%\n",
			ev.Region, ev.Status, ev.LimitCode, ev.LimitName, ev.CurrentUsage)
	}
}
