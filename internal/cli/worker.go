package cli

import (
	"fmt"

	"github.com/kursadbilgin/notification-platform/internal/app"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the delivery worker of one channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := domain.ParseChannelFromString(channel)
			if err != nil {
				return fmt.Errorf("--channel: %w", err)
			}

			ctx, stop, cfg, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			return app.RunWorker(ctx, cfg, ch)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Delivery channel to consume (email or push)")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}
