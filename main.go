// Command partsbuilder runs the stages that build the heavy-equipment parts website:
// scrape, transform, enrich, merge, import, render, patch, validate, translate and sitemap.
// Stages hand their work to each other through files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/heavyparts/parts_site_builder/config"
	"github.com/heavyparts/parts_site_builder/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Configuration and logger
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "partsbuilder",
	Short: "Build the heavy-equipment spare parts website",
	Long: `partsbuilder scrapes vendor catalogs, turns the records into the parts database
and renders, patches, translates and indexes the static website built from it.

Typical run:
  partsbuilder scrape --target srp
  partsbuilder transform --in data/full_dataset.jsonl --out data/srp-database.json
  partsbuilder merge data/parts-database.json data/srp-database.json
  partsbuilder render
  partsbuilder patch
  partsbuilder translate
  partsbuilder sitemap`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		// The flags may have replaced checked values
		if err := cfg.Validate(); err != nil {
			return err
		}
		log = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: defaults plus environment)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "console or json")

	rootCmd.AddCommand(newScrapeCmd())
	rootCmd.AddCommand(newTransformCmd())
	rootCmd.AddCommand(newEnrichCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newPatchCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newTranslateCmd())
	rootCmd.AddCommand(newSitemapCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
