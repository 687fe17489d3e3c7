package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

func newNotifyCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Dispatch a utilization event envelope to the configured notifiers",
		Long:  "Reads an event bus envelope as JSON from --file, or stdin when no file is given, and hands it to the notifiers unless it is muted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			var env model.Envelope
			if err := json.NewDecoder(in).Decode(&env); err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				outcomes, err := a.dispatch(ctx, env)
				if err != nil {
					return err
				}
				var errs []error
				for _, o := range outcomes {
					switch {
					case o.Muted:
						fmt.Fprintf(cmd.OutOrStdout(), "%s: muted (%s)\n", o.Channel, o.Reason)
					case o.Err != nil:
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", o.Channel, o.Err)
						errs = append(errs, o.Err)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "%s: sent\n", o.Channel)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "envelope JSON file")
	return cmd
}
