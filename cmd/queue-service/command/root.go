package command

import (
	"context"

	"qfree/queue-service/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Root builds the queue-service command. Run without a subcommand it serves
// the API, same as "queue-service serve".
func Root(ctx context.Context, cfg config.Config, logger *logrus.Logger) *cobra.Command {
	serve := Server{Logger: logger}.Command(ctx, cfg)
	root := &cobra.Command{
		Use:           "queue-service",
		Short:         "QFree virtual queue service",
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serve,
		Migrate{Logger: logger}.Command(ctx, cfg),
	)
	return root
}
