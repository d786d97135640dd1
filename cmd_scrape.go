package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/heavyparts/parts_site_builder/seedlist"
	"github.com/heavyparts/parts_site_builder/sparepower"
	"github.com/heavyparts/parts_site_builder/spiderdata"
	"github.com/heavyparts/parts_site_builder/srp"
	"github.com/spf13/cobra"
)

type scrapeSite struct {
	target    func(seeds []string) *spiderdata.SpiderTarget
	searchURL func(partNumber string) string
}

var scrapeSites = map[string]scrapeSite{
	"srp":        {target: srp.Target, searchURL: srp.SearchURL},
	"sparepower": {target: sparepower.Target, searchURL: sparepower.SearchURL},
}

func newScrapeCmd() *cobra.Command {
	var (
		site        string
		seedFile    string
		seeds       []string
		out         string
		single      bool
		stopAtURL   string
		stopAfter   time.Duration
		cancelAfter time.Duration
		memStats    time.Duration
		spreadsheet string
		fresh       bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawl a vendor catalog into the JSONL scrape log",
		Long: `Crawl a vendor site and append one JSON record per product to the scrape log.
Records already in the log are skipped, so an interrupted crawl can be resumed
by running the same command again.

Seeds are either URLs or part numbers; part numbers become site search pages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := scrapeSites[site]
			if !ok {
				return fmt.Errorf("unknown target %q (srp or sparepower)", site)
			}

			entries := append([]string(nil), seeds...)
			if seedFile != "" {
				fromFile, err := seedlist.ReadFile(seedFile)
				if err != nil {
					return err
				}
				entries = append(entries, fromFile...)
			}
			target := s.target(seedlist.ToURLs(entries, s.searchURL))
			target.Configure(cfg.Scrape)
			target.StopAtURL = stopAtURL
			target.StopAfter = stopAfter
			target.MemStats = memStats

			ctx := cmd.Context()
			if cancelAfter > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cancelAfter)
				defer cancel()
			}

			out = orDefault(out, cfg.Paths.ScrapeLog)
			if fresh {
				if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			seen, err := spiderdata.LoadSeen(out)
			if err != nil {
				return err
			}
			writer, err := spiderdata.NewRecordWriter(out)
			if err != nil {
				return err
			}

			g := spiderdata.NewGlobals(target, writer, log)
			g.SingleOnly = single
			g.Resume(seen)

			spreadsheet = orDefault(spreadsheet, cfg.Scrape.SpreadsheetID)
			if spreadsheet != "" {
				catalog, err := seedlist.LoadSheet(ctx, seedlist.SheetConfig{
					SpreadsheetID: spreadsheet,
					Credentials:   cfg.Scrape.Credentials,
					TokenFile:     cfg.Scrape.TokenFile,
					Prompt:        os.Stdin,
					Out:           os.Stderr,
				})
				if err != nil {
					writer.Close()
					return fmt.Errorf("load spreadsheet: %w", err)
				}
				g.Catalog = catalog
				log.Info().Int("parts", catalog.Len()).Msg("reference catalog loaded")
			}

			log.Info().Str("target", target.Name).Int("seeds", len(target.Seeds)).
				Int("resumed_urls", len(seen.URLs)).Str("out", out).Msg("scrape started")
			stats, runErr := spiderdata.Run(ctx, target, g)
			if err := writer.Close(); err != nil {
				return fmt.Errorf("close scrape log: %w", err)
			}
			log.Info().Int("pages", stats.Pages).Int("records", stats.Records).Int("duplicates", stats.Duplicates).
				Int("retries", stats.Retries).Int("errors", stats.Errors).Int("missing", stats.Missing).Msg("scrape finished")

			// A timed cancel is a normal way to end a crawl
			if runErr != nil && cancelAfter > 0 && ctx.Err() == context.DeadlineExceeded {
				return nil
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&site, "target", "t", "srp", "site to crawl: srp or sparepower")
	cmd.Flags().StringVar(&seedFile, "seeds", "", "file with one seed URL or part number per line")
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed URL or part number (repeatable)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "scrape log (default paths.scrape_log)")
	cmd.Flags().BoolVar(&single, "single", false, "only fetch the seeds, do not follow links")
	cmd.Flags().StringVar(&stopAtURL, "stop-at", "", "stop the crawl when this URL comes up")
	cmd.Flags().DurationVar(&stopAfter, "stop-after", 0, "stop taking new URLs after this long")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "cancel the crawl after this long")
	cmd.Flags().DurationVar(&memStats, "memstats", 0, "log memory statistics at this interval")
	cmd.Flags().StringVar(&spreadsheet, "spreadsheet", "", "reference spreadsheet id (default scrape.spreadsheet_id)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard the existing scrape log instead of resuming")

	return cmd
}
