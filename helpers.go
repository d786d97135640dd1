package main

import (
	"fmt"
	"os"
	"time"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/render"
	"github.com/schollz/progressbar/v3"
)

// siteInfo is the part of the configuration every page needs
func siteInfo() render.SiteInfo {
	return render.SiteInfo{
		BaseURL:   cfg.Site.BaseURL,
		Name:      cfg.Site.Name,
		Lang:      cfg.Site.DefaultLanguage,
		Languages: cfg.Site.Languages,
		Currency:  cfg.Site.Currency,
	}
}

// newProgressBar draws on stderr, the same stream the logger writes to by default
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("parts"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// loadParts reads a database file and logs what was skipped
func loadParts(path string) ([]partcatalog.Part, error) {
	parts, stats, err := partdb.Load(path)
	if err != nil {
		return nil, err
	}
	event := log.Info()
	if stats.Invalid > 0 {
		event = log.Warn()
	}
	event.Str("path", path).Int("records", stats.Records).Int("invalid", stats.Invalid).Msg("database loaded")
	return parts, nil
}

// saveParts writes a database file atomically
func saveParts(path string, parts []partcatalog.Part) error {
	if err := partdb.Save(path, parts); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("records", len(parts)).Msg("database written")
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
