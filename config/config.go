// Package config loads the pipeline settings from a YAML file, a .env file and
// environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the pipeline
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Paths   PathsConfig   `yaml:"paths"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Sitemap SitemapConfig `yaml:"sitemap"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig describes the published website
type SiteConfig struct {
	BaseURL         string   `yaml:"base_url"`
	Name            string   `yaml:"name"`
	LegacyDomains   []string `yaml:"legacy_domains"`
	DefaultLanguage string   `yaml:"default_language"`
	Languages       []string `yaml:"languages"`
	Currency        string   `yaml:"currency"`
}

// PathsConfig holds the file locations the stages read and write
type PathsConfig struct {
	Database     string `yaml:"database"`
	ScrapeLog    string `yaml:"scrape_log"`
	Enrichment   string `yaml:"enrichment"`
	SQLite       string `yaml:"sqlite"`
	Output       string `yaml:"output"`
	Templates    string `yaml:"templates"`
	Dictionaries string `yaml:"dictionaries"`
	PatchRules   string `yaml:"patch_rules"`
}

// ScrapeConfig holds the crawler politeness settings
type ScrapeConfig struct {
	UserAgent         string        `yaml:"user_agent"`
	CrawlDelay        time.Duration `yaml:"crawl_delay"`
	RateLimitDelay    time.Duration `yaml:"rate_limit_delay"`
	MaxRetries        int           `yaml:"max_retries"`
	WorkerIdleTTL     time.Duration `yaml:"worker_idle_ttl"`
	DisablePoliteness bool          `yaml:"disable_politeness"`
	SpreadsheetID     string        `yaml:"spreadsheet_id"`
	Credentials       string        `yaml:"credentials"`
	TokenFile         string        `yaml:"token_file"`
}

// SitemapConfig holds sitemap writer settings
type SitemapConfig struct {
	MaxURLsPerFile int    `yaml:"max_urls_per_file"`
	ChangeFreq     string `yaml:"changefreq"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:         "https://www.heavyparts.example",
			Name:            "Heavy Equipment Spare Parts",
			DefaultLanguage: "en",
			Currency:        "USD",
		},
		Paths: PathsConfig{
			Database:     "data/parts-database.json",
			ScrapeLog:    "data/full_dataset.jsonl",
			Enrichment:   "data/enriched_product_data.json",
			SQLite:       "data/parts.sqlite",
			Output:       "site",
			Templates:    "templates",
			Dictionaries: "dictionaries",
		},
		Scrape: ScrapeConfig{
			UserAgent:      "Mozilla/5.0 (compatible; heavyparts-bot/1.0)",
			CrawlDelay:     1500 * time.Millisecond,
			RateLimitDelay: 60 * time.Second,
			MaxRetries:     3,
			WorkerIdleTTL:  10 * time.Second,
			Credentials:    "credentials.json",
			TokenFile:      "token.json",
		},
		Sitemap: SitemapConfig{
			MaxURLsPerFile: 50000,
			ChangeFreq:     "weekly",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// A missing .env is normal
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARTS_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("PARTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARTS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PARTS_OUTPUT_DIR"); v != "" {
		cfg.Paths.Output = v
	}
	if v := os.Getenv("PARTS_DATABASE"); v != "" {
		cfg.Paths.Database = v
	}
	if v := os.Getenv("PARTS_SPREADSHEET_ID"); v != "" {
		cfg.Scrape.SpreadsheetID = v
	}
}

// Validate checks the settings that would otherwise fail deep inside a stage
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: site.base_url %q must be an absolute URL", ErrInvalid, c.Site.BaseURL)
	}
	c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")

	if _, err := language.Parse(c.Site.DefaultLanguage); err != nil {
		return fmt.Errorf("%w: site.default_language %q: %v", ErrInvalid, c.Site.DefaultLanguage, err)
	}
	for _, lang := range c.Site.Languages {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("%w: site.languages entry %q: %v", ErrInvalid, lang, err)
		}
	}
	if c.Sitemap.MaxURLsPerFile <= 0 || c.Sitemap.MaxURLsPerFile > 50000 {
		return fmt.Errorf("%w: sitemap.max_urls_per_file must be between 1 and 50000", ErrInvalid)
	}
	if c.Scrape.MaxRetries < 0 {
		return fmt.Errorf("%w: scrape.max_retries must not be negative", ErrInvalid)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json", ErrInvalid)
	}
	return nil
}
