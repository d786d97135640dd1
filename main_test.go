package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heavyparts/parts_site_builder/config"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/sitemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scrapeLog = `{"part_number":"1r0750","part_name":"Fuel filter element","brand":"Caterpillar","url":"https://srp.example/urun/1r0750","source":"srp","scraped_at":"2026-10-01T10:00:00Z"}
{"part_number":"1R-0750","part_name":"Fuel filter","brand":"caterpillar","category":"Filters","oem_numbers":["FF5052"],"compatible_models":["D6R"],"url":"https://srp.example/urun/1r-0750","source":"srp","scraped_at":"2026-10-01T10:00:02Z"}
{"part_number":"11102474","part_name":"Planetary gear","brand":"VOLVO","description":"Gear for the final drive","url":"https://srp.example/urun/11102474","source":"srp","scraped_at":"2026-10-01T10:00:01Z"}
{"part_number":"","part_name":"Catalog page","url":"https://srp.example/urunler","source":"srp","scraped_at":"2026-10-01T10:00:03Z"}
{"part_number":"4N-1
`

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"data", "site", "dictionaries"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "full_dataset.jsonl"), []byte(scrapeLog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dictionaries", "tr.yaml"), []byte(`lang: tr
entries:
  - en: Fuel filter
    text: Yakıt filtresi
`), 0o644))

	yaml := strings.ReplaceAll(`site:
  base_url: https://parts.example/
  name: Heavy Parts
  default_language: en
  languages: [en, tr]
paths:
  database: DIR/data/parts-database.json
  scrape_log: DIR/data/full_dataset.jsonl
  sqlite: DIR/data/parts.sqlite
  output: DIR/site
  templates: DIR/templates
  dictionaries: DIR/dictionaries
sitemap:
  max_urls_per_file: 1000
logging:
  level: warn
  format: json
`, "DIR", filepath.ToSlash(dir))
	config := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(config, []byte(yaml), 0o644))
	return workspace{dir: dir, config: config}
}

func (w workspace) run(args ...string) error {
	rootCmd.SetArgs(append(args, "--config", w.config))
	return rootCmd.ExecuteContext(context.Background())
}

func TestCommandTree(t *testing.T) {
	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"scrape", "transform", "enrich", "merge", "import", "render", "patch", "validate", "translate", "sitemap"} {
		assert.Contains(t, names, want)
	}
}

func TestPipeline(t *testing.T) {
	w := newWorkspace(t)
	database := filepath.Join(w.dir, "data", "parts-database.json")

	require.NoError(t, w.run("transform"))
	parts, stats, err := partdb.Load(database)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Invalid)
	require.Len(t, parts, 2, "1r0750 and 1R-0750 are the same part, the cut off line and the empty part number are dropped")

	// Merging a database into itself adds nothing
	require.NoError(t, w.run("merge", database, database, "--policy", "skip-if-exists"))
	merged, _, err := partdb.Load(database)
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	require.NoError(t, w.run("import", database, "--export", filepath.Join(w.dir, "data", "export.json")))
	exported, _, err := partdb.Load(filepath.Join(w.dir, "data", "export.json"))
	require.NoError(t, err)
	assert.Len(t, exported, 2)

	require.NoError(t, w.run("render"))
	require.NoError(t, w.run("patch"))
	require.NoError(t, w.run("translate"))
	require.NoError(t, w.run("sitemap"))

	site := filepath.Join(w.dir, "site")
	pages, err := filepath.Glob(filepath.Join(site, "*", "*", "*.html"))
	require.NoError(t, err)
	assert.NotEmpty(t, pages)
	_, err = os.Stat(filepath.Join(site, "cross-reference", "ff5052.html"))
	assert.NoError(t, err, "the competitor number gets an intercept page")
	translated, err := filepath.Glob(filepath.Join(site, "tr", "*", "*", "*.html"))
	require.NoError(t, err)
	assert.NotEmpty(t, translated)

	report, err := sitemap.Verify(filepath.Join(site, sitemap.SingleFile), site, "https://parts.example")
	require.NoError(t, err)
	assert.True(t, report.OK())

	require.NoError(t, w.run("validate"))

	// A broken JSON-LD block fails validation
	broken := filepath.Join(site, "broken.html")
	require.NoError(t, os.WriteFile(broken, []byte(`<html><head><script type="application/ld+json">{"name": }</script></head></html>`), 0o644))
	assert.ErrorIs(t, w.run("validate"), ErrValidation)
}

func TestMergeRejectsUnknownPolicy(t *testing.T) {
	w := newWorkspace(t)
	database := filepath.Join(w.dir, "data", "parts-database.json")
	require.NoError(t, w.run("transform"))
	err := w.run("merge", database, database, "--policy", "newest")
	assert.ErrorContains(t, err, "unknown policy")
	// Reset for other tests sharing the command tree
	require.NoError(t, w.run("merge", database, database, "--policy", "skip-if-exists"))
}

func TestScrapeRejectsUnknownTarget(t *testing.T) {
	w := newWorkspace(t)
	err := w.run("scrape", "--target", "nowhere", "--seed", "https://example.com/")
	assert.ErrorContains(t, err, "unknown target")
	scrape, _, err := rootCmd.Find([]string{"scrape"})
	require.NoError(t, err)
	require.NoError(t, scrape.Flags().Set("target", "srp"))
}

func TestLogFlagsAreValidated(t *testing.T) {
	w := newWorkspace(t)
	err := w.run("transform", "--log-format", "xml")
	assert.ErrorIs(t, err, config.ErrInvalid)
	require.NoError(t, rootCmd.PersistentFlags().Set("log-format", ""))

	require.NoError(t, w.run("transform", "--log-format", "CONSOLE"))
	require.NoError(t, rootCmd.PersistentFlags().Set("log-format", ""))
}
