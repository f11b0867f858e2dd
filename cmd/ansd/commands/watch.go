package commands

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/shutdown"
	"github.com/vinayprograms/ans/stream"
)

// WatchCmd prints registry events as they happen.
var WatchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "Follow registry events",
	Long: `Connect to a registry's event stream and print one JSON line per event
until interrupted. The default URL is http://localhost:8080/events.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := "http://localhost:8080/events"
		if len(args) == 1 {
			url = args[0]
		}

		ctx, stop := shutdown.NotifyContext(cmd.Context())
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		err := stream.Watch(ctx, nil, url, func(ev bus.Event) {
			enc.Encode(ev)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
