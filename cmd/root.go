// Package cmd defines the CLI commands of the causas executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/config"
	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
	"github.com/JakeFAU/causas-crawler/internal/logging"
	"github.com/JakeFAU/causas-crawler/internal/server"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

// App is what the commands need from the application graph.
type App interface {
	Crawler() *crawler.Crawler
	Handler() *handler.Handler
	Store() *store.Store
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// cliState holds what PersistentPreRunE built for the executing command.
type cliState struct {
	cfg    config.Config
	logger *zap.Logger
	app    App
}

func (r *cliState) resolve() (App, error) {
	if r.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return r.app, nil
}

func (r *cliState) close(ctx context.Context) error {
	var err error
	if r.app != nil {
		err = r.app.Close(ctx)
		r.app = nil
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	return err
}

// newRootCmd creates the root command and its subcommands, all sharing rt.
func newRootCmd(rt *cliState) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "causas",
		Short: "Crawl and persist judicial cases by litigant.",
		Long: `causas downloads every case a litigant is party to from the public
judicial case-tracking service, with movements, incidents, parties and docket
actions, and upserts them into a relational store. It runs one-off crawls
from the command line or serves the crawl and the stored data over HTTP.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			rt.cfg = cfg
			rt.logger = logger

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			rt.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(rt))
	cmd.AddCommand(newCrawlCmd(rt))
	cmd.AddCommand(newMigrateCmd(rt))
	return cmd
}

// run executes the CLI with args and releases the application afterwards,
// whether or not the command succeeded.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rt := &cliState{}
	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := rt.close(context.Background()); cerr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", cerr)
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
