package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawl and the stored data over HTTP",
		Long: `Starts the HTTP API on the configured port. POST
/v1/litigants/{national_id}/process?role= crawls and persists a litigant, the
GET routes read back what is stored. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.resolve()
			if err != nil {
				return err
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
