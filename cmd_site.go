package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/patch"
	"github.com/heavyparts/parts_site_builder/render"
	"github.com/heavyparts/parts_site_builder/sitemap"
	"github.com/heavyparts/parts_site_builder/translate"
	"github.com/spf13/cobra"
)

// ErrValidation is returned by validate when the site has problems
var ErrValidation = errors.New("site validation failed")

func newRenderCmd() *cobra.Command {
	var (
		database  string
		fromStore bool
		layouts   string
		out       string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the parts database into the static site",
		Long: `Write one page per part, one index per brand and category, and one
cross-reference page per competitor number that is not itself a part.
Parts whose brand and category have an archetype page (<brand>-<category>-base.html
in paths.templates) are rendered into it, the others use the built-in layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var parts []partcatalog.Part
			var err error
			if fromStore {
				parts, err = storeParts(cmd)
			} else {
				parts, err = loadParts(orDefault(database, cfg.Paths.Database))
			}
			if err != nil {
				return err
			}

			var fsys fs.FS
			if layouts != "" {
				fsys = os.DirFS(layouts)
			}
			renderer, err := render.New(siteInfo(), fsys)
			if err != nil {
				return err
			}
			archetypes, err := render.LoadArchetypes(renderer, cfg.Paths.Templates)
			if err != nil {
				return err
			}
			log.Info().Int("archetypes", archetypes.Len()).Str("dir", cfg.Paths.Templates).Msg("archetypes loaded")

			bar := newProgressBar(len(parts), "render")
			site := &render.Site{
				Root:       orDefault(out, cfg.Paths.Output),
				Renderer:   renderer,
				Archetypes: archetypes,
				Log:        log,
				Progress:   func() { bar.Add(1) },
			}
			stats, err := site.Build(parts)
			bar.Finish()
			if err != nil {
				return err
			}
			log.Info().Str("root", site.Root).Int("parts", stats.Parts).Int("archetype", stats.Archetype).
				Int("categories", stats.Categories).Int("intercepts", stats.Intercepts).
				Int("failed", stats.Failed).Int("written", len(stats.Written)).Msg("site rendered")
			return nil
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "database to render (default paths.database)")
	cmd.Flags().BoolVar(&fromStore, "store", false, "render from the SQLite store instead of the database file")
	cmd.Flags().StringVar(&layouts, "layouts", "", "directory with part.html, category.html and intercept.html overriding the built-in layout")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default paths.output)")
	return cmd
}

func storeParts(cmd *cobra.Command) ([]partcatalog.Part, error) {
	db, err := partdb.OpenStore(cmd.Context(), cfg.Paths.SQLite)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	parts, err := db.All(cmd.Context())
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.Paths.SQLite).Int("records", len(parts)).Msg("store loaded")
	return parts, nil
}

func newPatchCmd() *cobra.Command {
	var (
		root    string
		glob    string
		rules   string
		dryRun  bool
		noFixes bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply the repair rules to the generated pages",
		Long: `Rewrite the generated pages in place: legacy domains become the canonical one,
empty part placeholders and malformed meta closings are removed, and the JSON-LD
blocks are repaired. Extra rules come from paths.patch_rules (YAML).
Only pages that change are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := patch.BuiltinRules(cfg.Site.BaseURL, cfg.Site.LegacyDomains)
			rules = orDefault(rules, cfg.Paths.PatchRules)
			if rules != "" {
				extra, err := patch.LoadRules(rules)
				if err != nil {
					return err
				}
				all = append(all, extra...)
			}
			p := &patch.Patcher{Rules: all, DryRun: dryRun}
			if !noFixes {
				p.Fixes = patch.BuiltinFixes()
			}

			root = orDefault(root, cfg.Paths.Output)
			report, err := p.Apply(root, glob)
			if err != nil {
				return err
			}
			for _, file := range report.Files {
				if file.Err != nil {
					log.Error().Err(file.Err).Str("path", file.Path).Msg("patch failed")
				} else if verbose {
					log.Info().Str("path", file.Path).Strs("applied", file.Applied).Msg("patched")
				}
			}
			counts := report.Counts()
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				log.Info().Str("rule", name).Int("pages", counts[name]).Msg("rule applied")
			}
			log.Info().Str("root", root).Bool("dry_run", dryRun).Int("scanned", report.Scanned).
				Int("changed", report.Changed).Int("failed", report.Failed).Msg("patch finished")
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", "", "site directory (default paths.output)")
	cmd.Flags().StringVarP(&glob, "glob", "g", "*.html", "pages to patch; a pattern without / matches file names at any depth")
	cmd.Flags().StringVar(&rules, "rules", "", "YAML rule file (default paths.patch_rules)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would change without writing")
	cmd.Flags().BoolVar(&noFixes, "no-fixes", false, "only run the text rules, not the JSON-LD repairs")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every changed page")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the JSON-LD blocks and the sitemap of the generated site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root = orDefault(root, cfg.Paths.Output)
			failed := false

			problems, blocks, err := patch.ValidateJSONLD(root)
			if err != nil {
				return err
			}
			for _, problem := range problems {
				log.Error().Err(problem.Err).Str("path", problem.Path).Int("block", problem.Block).Msg("invalid JSON-LD")
			}
			failed = failed || len(problems) > 0
			log.Info().Int("blocks", blocks).Int("problems", len(problems)).Msg("JSON-LD checked")

			entry, found := sitemapEntry(root)
			if !found {
				log.Warn().Str("root", root).Msg("no sitemap")
			} else {
				report, err := sitemap.Verify(entry, root, cfg.Site.BaseURL)
				if err != nil {
					return err
				}
				logSitemapReport(report)
				failed = failed || !report.OK()
			}

			if failed {
				return ErrValidation
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", "", "site directory (default paths.output)")
	return cmd
}

// sitemapEntry finds the sitemap index, or the single sitemap, of a site
func sitemapEntry(root string) (string, bool) {
	for _, name := range []string{sitemap.IndexFile, sitemap.SingleFile} {
		filename := filepath.Join(root, name)
		if _, err := os.Stat(filename); err == nil {
			return filename, true
		}
	}
	return "", false
}

func logSitemapReport(report sitemap.VerifyReport) {
	for _, loc := range report.Missing {
		log.Error().Str("loc", loc).Msg("sitemap entry without a page")
	}
	for _, loc := range report.Foreign {
		log.Error().Str("loc", loc).Msg("sitemap entry outside the site")
	}
	log.Info().Strs("files", report.Files).Int("urls", report.URLs).Int("missing", len(report.Missing)).
		Int("foreign", len(report.Foreign)).Msg("sitemap checked")
}

func newTranslateCmd() *cobra.Command {
	var root, dictionaries string

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Write the translated copies of the site",
		Long: `For every dictionary (<lang>.yaml in paths.dictionaries) write a copy of each page
under <lang>/ with the dictionary phrases replaced, the lang and dir attributes set and
the site links moved into the language directory. Phrases without an entry stay English.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dictionaries = orDefault(dictionaries, cfg.Paths.Dictionaries)
			dicts, err := translate.LoadDictionaries(dictionaries)
			if err != nil {
				return err
			}
			if len(dicts) == 0 {
				return fmt.Errorf("%s: no dictionaries", dictionaries)
			}
			for _, dict := range dicts {
				log.Info().Str("lang", dict.Lang).Str("dir", dict.Dir).Int("entries", len(dict.Entries)).Msg("dictionary loaded")
			}

			root = orDefault(root, cfg.Paths.Output)
			stats, err := translate.TranslateTree(root, dicts, siteInfo(), log)
			if err != nil {
				return err
			}
			log.Info().Str("root", root).Int("pages", stats.Pages).Int("written", stats.Written).
				Int("hreflang", stats.Hreflang).Int("failed", stats.Failed).Msg("translation finished")
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", "", "site directory (default paths.output)")
	cmd.Flags().StringVar(&dictionaries, "dictionaries", "", "dictionary directory (default paths.dictionaries)")
	return cmd
}

func newSitemapCmd() *cobra.Command {
	var (
		root    string
		exclude []string
		today   bool
	)

	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Write sitemap.xml for the generated site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root = orDefault(root, cfg.Paths.Output)
			opts := sitemap.Options{ChangeFreq: cfg.Sitemap.ChangeFreq, Exclude: exclude}
			if today {
				opts.LastMod = time.Now()
			}
			urls, err := sitemap.Collect(root, cfg.Site.BaseURL, opts)
			if err != nil {
				return err
			}
			files, err := sitemap.Write(root, cfg.Site.BaseURL, urls, cfg.Sitemap.MaxURLsPerFile)
			if err != nil {
				return err
			}
			log.Info().Strs("files", files).Int("urls", len(urls)).Msg("sitemap written")

			report, err := sitemap.Verify(filepath.Join(root, files[0]), root, cfg.Site.BaseURL)
			if err != nil {
				return err
			}
			logSitemapReport(report)
			if !report.OK() {
				return ErrValidation
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", "", "site directory (default paths.output)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", []string{"404.html"}, "pages to leave out (glob, repeatable)")
	cmd.Flags().BoolVar(&today, "today", false, "use today as lastmod instead of the file times")
	return cmd
}
