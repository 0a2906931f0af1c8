package cli

import (
	"github.com/kursadbilgin/notification-platform/internal/app"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the public HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			return app.RunGateway(ctx, cfg)
		},
	}
}
