package cli

import (
	"github.com/kursadbilgin/notification-platform/internal/app"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Run database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) > 0 {
				action = args[0]
			}

			ctx, stop, cfg, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			return app.RunMigrations(ctx, cfg, action)
		},
	}
}
