package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/heavyparts/parts_site_builder/merge"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/spiderdata"
	"github.com/heavyparts/parts_site_builder/transform"
	"github.com/spf13/cobra"
)

// ErrDuplicates is returned when a database still holds repeated part numbers
var ErrDuplicates = errors.New("duplicate part numbers")

func transformOptions(origin string) transform.Options {
	return transform.Options{Origin: origin, BaseURL: cfg.Site.BaseURL, Currency: cfg.Site.Currency}
}

func newTransformCmd() *cobra.Command {
	var in, out, origin string

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Turn the scrape log into a parts database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in = orDefault(in, cfg.Paths.ScrapeLog)
			records, err := spiderdata.ReadRecords(in)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("%s: no records", in)
			}

			opts := transformOptions(origin)
			catalog := partcatalog.NewCatalog()
			dropped := 0
			bar := newProgressBar(len(records), "transform")
			for _, rec := range records {
				part := transform.FromRecord(rec, opts)
				bar.Add(1)
				if part.Key() == "" {
					dropped++
					continue
				}
				// Later scrapes of a part are fresher
				catalog.Add(&part, partcatalog.LastWriteWins)
			}
			bar.Finish()

			log.Info().Int("records", len(records)).Int("parts", catalog.Len()).Int("no_part_number", dropped).Msg("transformed")
			return saveParts(orDefault(out, cfg.Paths.Database), catalog.Parts())
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "scrape log (default paths.scrape_log)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "database to write (default paths.database)")
	cmd.Flags().StringVar(&origin, "origin", "", "provenance tag for every record (default the record's source)")
	return cmd
}

func newEnrichCmd() *cobra.Command {
	var database, enrichment, scrapeLog, out string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fold generated descriptions and scraped details into the database",
		Long: `Merge the enrichment file (descriptions, specs and models keyed by part number)
and, with --scrape, the details of matching scrape log records into the database.
Existing values are only replaced by richer ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database = orDefault(database, cfg.Paths.Database)
			parts, err := loadParts(database)
			if err != nil {
				return err
			}
			opts := transformOptions("")

			enrichment = orDefault(enrichment, cfg.Paths.Enrichment)
			if enrichment != "-" {
				enriched, err := transform.LoadEnrichment(enrichment)
				if err != nil {
					return err
				}
				stats := transform.Enrich(parts, enriched, opts)
				log.Info().Int("entries", len(enriched)).Int("matched", stats.Matched).
					Int("descriptions", stats.Descriptions).Int("specs_added", stats.SpecsAdded).Msg("enrichment applied")
			}

			if scrapeLog != "" {
				records, err := spiderdata.ReadRecords(scrapeLog)
				if err != nil {
					return err
				}
				stats := transform.EnrichFromScrape(parts, records, opts)
				log.Info().Int("records", len(records)).Int("matched", stats.Matched).
					Int("filled", stats.Filled).Int("specs_added", stats.SpecsAdded).Msg("scrape details applied")
			}
			return saveParts(orDefault(out, database), parts)
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "database to enrich (default paths.database)")
	cmd.Flags().StringVarP(&enrichment, "enrichment", "e", "", "enrichment file, - to skip (default paths.enrichment)")
	cmd.Flags().StringVar(&scrapeLog, "scrape", "", "scrape log to take missing details from")
	cmd.Flags().StringVarP(&out, "out", "o", "", "database to write (default: in place)")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var (
		out            string
		policy         string
		baseOrigin     string
		incomingOrigin string
	)

	cmd := &cobra.Command{
		Use:   "merge BASE INCOMING",
		Short: "Merge two parts databases without duplicating part numbers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dup, ok := partcatalog.ParseDuplicatePolicy(policy)
			if !ok {
				return fmt.Errorf("unknown policy %q (skip-if-exists or last-write-wins)", policy)
			}
			base, err := loadParts(args[0])
			if err != nil {
				return err
			}
			incoming, err := loadParts(args[1])
			if err != nil {
				return err
			}

			merged, stats := merge.Merge(base, incoming, merge.Options{
				Policy:         dup,
				BaseOrigin:     baseOrigin,
				IncomingOrigin: incomingOrigin,
			})
			if dups := merge.Duplicates(merged); len(dups) > 0 {
				return fmt.Errorf("%w after merge: %s", ErrDuplicates, strings.Join(dups, ", "))
			}
			log.Info().Stringer("policy", dup).Int("base", stats.Base).Int("incoming", stats.Incoming).
				Int("added", stats.Added).Int("replaced", stats.Replaced).Int("skipped", stats.Skipped).
				Int("no_part_number", stats.DroppedNoKey).Int("total", len(merged)).Msg("merged")
			return saveParts(orDefault(out, args[0]), merged)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "database to write (default: BASE in place)")
	cmd.Flags().StringVarP(&policy, "policy", "p", "skip-if-exists", "what to do with a part already in BASE: skip-if-exists or last-write-wins")
	cmd.Flags().StringVar(&baseOrigin, "base-origin", "", "provenance tag for BASE records without one")
	cmd.Flags().StringVar(&incomingOrigin, "incoming-origin", "", "provenance tag for INCOMING records without one")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		store  string
		source string
		export string
	)

	cmd := &cobra.Command{
		Use:   "import [DATABASE...]",
		Short: "Load databases into the SQLite store",
		Long: `Upsert every record of the given database files into the SQLite store, keyed by
normalized part number. With --export the whole store is then written back out as a
database file, which is how the store feeds the render stage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := partdb.OpenStore(ctx, orDefault(store, cfg.Paths.SQLite))
			if err != nil {
				return err
			}
			defer db.Close()

			for _, path := range args {
				parts, err := loadParts(path)
				if err != nil {
					return err
				}
				result, err := db.Upsert(ctx, orDefault(source, path), parts...)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				log.Info().Str("path", path).Str("import_id", result.ImportID).
					Int("written", result.Written).Int("skipped", result.Skipped).Msg("imported")
			}

			count, err := db.Count(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("parts", count).Msg("store")

			if export != "" {
				parts, err := db.All(ctx)
				if err != nil {
					return err
				}
				return saveParts(export, parts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&store, "store", "", "SQLite file (default paths.sqlite)")
	cmd.Flags().StringVar(&source, "source", "", "name recorded for the import (default the file name)")
	cmd.Flags().StringVar(&export, "export", "", "write the whole store to this database file")
	return cmd
}
