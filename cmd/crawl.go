package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
)

type crawlFlags struct {
	role        string
	file        string
	strict      bool
	dryRun      bool
	concurrency int
	progress    bool
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(rt *cliState) *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl [national_id...]",
		Short: "Crawl and persist the cases of one or more litigants",
		Long: `Fetches every case of each litigant under --role and upserts it into
the store. National IDs come from the arguments and from --file, one per line.
Each litigant's result is printed as a JSON line.

Without --strict a litigant whose crawl fails is reported and the command
carries on. With --strict any crawl failure makes the command exit non-zero.

With --dry-run nothing is persisted: the crawled records are printed as JSON
lines instead, and the first failure aborts the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, rt, flags, args)
		},
	}
	cmd.Flags().StringVarP(&flags.role, "role", "r", "", "litigant role: plaintiff or defendant")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "file with one national ID per line")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "fail when a crawl fails")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print crawled records without persisting them")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", 0, "litigants processed at once (default crawler.litigant_concurrency)")
	cmd.Flags().BoolVar(&flags.progress, "progress", true, "show a progress bar when crawling several litigants")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, rt *cliState, flags crawlFlags, args []string) error {
	role, err := crawler.ParseRole(flags.role)
	if err != nil {
		return err
	}
	ids := append([]string{}, args...)
	if flags.file != "" {
		fromFile, err := readIDs(flags.file)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	if len(ids) == 0 {
		return errors.New("no national IDs given")
	}

	app, err := rt.resolve()
	if err != nil {
		return err
	}
	limit := flags.concurrency
	if limit <= 0 {
		limit = rt.cfg.Crawler.LitigantConcurrency
	}
	if flags.dryRun {
		return runDryCrawl(cmd, rt, app.Crawler(), ids, role, limit)
	}

	opts := []handler.ProcessOption{}
	if flags.strict {
		opts = append(opts, handler.Strict())
	}
	var bar *pb.ProgressBar
	if flags.progress && len(ids) > 1 {
		bar = pb.Full.New(len(ids))
		bar.SetWriter(cmd.ErrOrStderr())
		bar.Set("prefix", role.String()+" ")
		bar.Set(pb.CleanOnFinish, true)
		bar.Start()
		opts = append(opts, handler.OnDone(func(*handler.ProcessResult, error) {
			bar.Increment()
		}))
	}

	results, procErr := app.Handler().ProcessMany(cmd.Context(), ids, role, limit, opts...)
	if bar != nil {
		bar.Finish()
	}

	failed := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if err := writeJSONLine(cmd.OutOrStdout(), r); err != nil {
			return err
		}
		if r.Outcome == handler.OutcomeFailed {
			failed++
		}
	}
	rt.logger.Info("crawl command finished",
		zap.Int("litigants", len(ids)),
		zap.Int("failed", failed),
		zap.String("role", role.String()),
	)
	return procErr
}

// runDryCrawl crawls without touching the store.
func runDryCrawl(cmd *cobra.Command, rt *cliState, c *crawler.Crawler, ids []string, role crawler.Role, limit int) error {
	records, err := c.CrawlMany(cmd.Context(), ids, role, limit)
	if err != nil {
		return err
	}
	cases := 0
	for _, record := range records {
		if err := writeJSONLine(cmd.OutOrStdout(), record); err != nil {
			return err
		}
		cases += len(record.Cases)
	}
	rt.logger.Info("dry crawl finished",
		zap.Int("litigants", len(records)),
		zap.Int("cases", cases),
		zap.String("role", role.String()),
	)
	return nil
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// readIDs reads one national ID per line, skipping blanks and # comments.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return ids, nil
}
