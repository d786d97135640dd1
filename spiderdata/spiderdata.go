package spiderdata

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/fetchbot"
	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/config"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/rs/zerolog"
)

// Record is one scraped product exactly as the source site shows it.
// It is appended to the scrape log as a single JSON line.
type Record struct {
	PartNumber       string            `json:"part_number"`
	PartName         string            `json:"part_name,omitempty"`
	Brand            string            `json:"brand,omitempty"`
	Category         string            `json:"category,omitempty"`
	Breadcrumb       string            `json:"breadcrumb,omitempty"`
	Description      string            `json:"description,omitempty"`
	Specs            map[string]string `json:"specs,omitempty"`
	OEMNumbers       []string          `json:"oem_numbers,omitempty"`
	CompatibleModels []string          `json:"compatible_models,omitempty"`
	Image            string            `json:"image,omitempty"`
	URL              string            `json:"url"`
	Source           string            `json:"source"`
	Discontinued     bool              `json:"discontinued,omitempty"`
	SpiderStatus     string            `json:"spider_status,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	ScrapedAt        time.Time         `json:"scraped_at"`
}

// RecordSink receives every record the spider accepts
type RecordSink interface {
	Write(rec Record)
}

// Stats counts what happened during a crawl
type Stats struct {
	Pages      int
	Records    int
	Duplicates int
	Retries    int
	Errors     int
	Missing    int
}

// Globals contains common data for the entire crawl
type Globals struct {
	// Reference catalog the scraped parts are reconciled against (optional)
	Catalog *partcatalog.Catalog
	Output  RecordSink
	Log     zerolog.Logger

	// Don't follow any links, only process the seeds
	SingleOnly bool

	// Protect access to tables
	Mu sync.Mutex

	// Duplicates table
	BreadcrumbMap map[string]string
	// URLs and part numbers already present in the scrape log
	DoneURLs  map[string]bool
	SeenParts map[string]bool

	TargetConfig *SpiderTarget
	Stats        Stats

	hosts   map[string]bool
	retries map[string]int
	stop    <-chan struct{}
	now     func() time.Time
}

// NewGlobals prepares the shared crawl state for a target
func NewGlobals(target *SpiderTarget, output RecordSink, log zerolog.Logger) *Globals {
	return &Globals{
		Output:        output,
		Log:           log,
		BreadcrumbMap: map[string]string{},
		DoneURLs:      map[string]bool{},
		SeenParts:     map[string]bool{},
		TargetConfig:  target,
		hosts:         map[string]bool{},
		retries:       map[string]int{},
		now:           time.Now,
	}
}

// Resume marks everything in seen as already scraped
func (g *Globals) Resume(seen Seen) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	for u := range seen.URLs {
		g.DoneURLs[u] = true
	}
	for pn := range seen.Parts {
		g.SeenParts[pn] = true
	}
}

// AddSeedHosts allows links on the hosts of the given URLs to be followed
func (g *Globals) AddSeedHosts(seeds ...string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid seed %q", seed)
		}
		g.hosts[u.Host] = true
	}
	return nil
}

// Context provides the globals used everywhere
type Context struct {
	Cmd fetchbot.Command
	Q   *fetchbot.Queue
	G   *Globals
}

// SpiderTarget provides the information for spidering a given parts site
type SpiderTarget struct {
	Name          string
	Seeds         []string
	ParsePageFunc func(ctx *Context, doc *goquery.Document)

	UserAgent         string
	CrawlDelay        time.Duration
	RateLimitDelay    time.Duration
	MaxRetries        int
	WorkerIdleTTL     time.Duration
	DisablePoliteness bool
	// Body text some sites send with a 200 instead of a 429
	RateLimitMarkers []string
	// Stop the crawl when this URL comes up
	StopAtURL string
	// Stop taking new URLs after this long, letting the queued ones finish
	StopAfter time.Duration
	// Log memory and fetcher statistics at this interval
	MemStats time.Duration
	// Optional client, mostly for tests
	HTTPClient fetchbot.Doer
}

// Configure applies the crawler politeness settings from the configuration file
func (target *SpiderTarget) Configure(cfg config.ScrapeConfig) {
	if cfg.UserAgent != "" {
		target.UserAgent = cfg.UserAgent
	}
	target.CrawlDelay = cfg.CrawlDelay
	target.RateLimitDelay = cfg.RateLimitDelay
	target.MaxRetries = cfg.MaxRetries
	target.WorkerIdleTTL = cfg.WorkerIdleTTL
	target.DisablePoliteness = cfg.DisablePoliteness
}

// MakeBreadCrumb merges breadcrumbs into a printable string
func MakeBreadCrumb(base string, toadd string) (result string) {
	result = base
	toadd = strings.TrimSpace(strings.ReplaceAll(toadd, "\u00A0", " "))
	if toadd != "" {
		if result != "" {
			result += " > "
		}
		result += toadd
	}
	return
}

// Query keys that only select a variant or track the visit. Everything else, like
// ?page= or ?q=, names a different page.
var noiseParams = map[string]bool{
	"sku":         true,
	"variant":     true,
	"add-to-cart": true,
	"gclid":       true,
	"fbclid":      true,
}

// CleanURL removes the fragment and the noise query keys from a URL returning the cleaned
// string and an indication that it changed. The query keys left are sorted so the same page
// always gives the same string.
func CleanURL(rawURL string) (result string, stripped bool) {
	pos := strings.IndexAny(rawURL, "?#")
	if pos <= 0 { // note <= and not < because we don't want to get an empty URL
		return rawURL, false
	}
	base, rest := rawURL[:pos], rawURL[pos:]
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
		stripped = true
	}
	query := strings.TrimPrefix(rest, "?")
	if query == "" {
		return base, stripped || rest != ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return base + "?" + query, stripped
	}
	for key := range values {
		if noiseParams[strings.ToLower(key)] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			values.Del(key)
		}
	}
	encoded := values.Encode()
	if encoded != query {
		stripped = true
	}
	if encoded == "" {
		return base, stripped
	}
	return base + "?" + encoded, stripped
}

// Resolve turns a link found on the current page into an absolute URL
func (ctx *Context) Resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
		return "", false
	}
	if ctx.Cmd == nil {
		u, err := url.Parse(href)
		if err != nil || !u.IsAbs() {
			return "", false
		}
		return u.String(), true
	}
	u, err := ctx.Cmd.URL().Parse(href)
	if err != nil {
		ctx.G.Log.Warn().Err(err).Str("url", href).Msg("resolve URL")
		return "", false
	}
	return u.String(), true
}

// PageURL is the cleaned URL of the page being parsed
func (ctx *Context) PageURL() string {
	if ctx.Cmd == nil {
		return ""
	}
	result, _ := CleanURL(ctx.Cmd.URL().String())
	return result
}

// Breadcrumb is the trail recorded when the current page was enqueued
func (ctx *Context) Breadcrumb() string {
	ctx.G.Mu.Lock()
	defer ctx.G.Mu.Unlock()
	return ctx.G.BreadcrumbMap[ctx.PageURL()]
}

// EnqueURL puts a URL on the queue.  Links leaving the seed hosts, pages we already
// queued and pages already in the scrape log are ignored.
func EnqueURL(ctx *Context, link string, breadcrumb string) {
	if ctx.G.SingleOnly {
		return
	}
	resolved, ok := ctx.Resolve(link)
	if !ok {
		return
	}
	urlString, _ := CleanURL(resolved)
	u, err := url.Parse(urlString)
	if err != nil {
		return
	}

	ctx.G.Mu.Lock()
	if !ctx.G.hosts[u.Host] {
		ctx.G.Mu.Unlock()
		return
	}
	_, found := ctx.G.BreadcrumbMap[urlString]
	done := ctx.G.DoneURLs[urlString]
	if !found && !done {
		ctx.G.BreadcrumbMap[urlString] = breadcrumb
	}
	ctx.G.Mu.Unlock()
	if found || done {
		return
	}

	ctx.G.Log.Debug().Str("url", urlString).Msg("+++Enqueue")
	if ctx.Q == nil {
		return
	}
	if _, err := ctx.Q.SendStringHead(urlString); err != nil {
		ctx.G.Log.Error().Err(err).Str("url", urlString).Msg("enqueue head")
	}
}

// OutputRecord accepts a scraped record: duplicates are dropped, the record is reconciled
// with the reference catalog and handed to the output.  Reports whether it was kept.
func OutputRecord(ctx *Context, rec Record) bool {
	g := ctx.G
	rec.PartNumber = strings.TrimSpace(rec.PartNumber)
	key := partcatalog.NormalizePartNumber(rec.PartNumber)
	if key == "" {
		g.Log.Warn().Str("url", ctx.PageURL()).Msg("product without a part number")
		return false
	}

	g.Mu.Lock()
	if g.SeenParts[key] {
		g.Stats.Duplicates++
		g.Mu.Unlock()
		return false
	}
	g.SeenParts[key] = true
	g.Mu.Unlock()

	if rec.URL == "" {
		rec.URL = ctx.PageURL()
	}
	if rec.Breadcrumb == "" {
		rec.Breadcrumb = ctx.Breadcrumb()
	}
	if rec.Source == "" && g.TargetConfig != nil {
		rec.Source = g.TargetConfig.Name
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = g.now().UTC()
	}

	if g.Catalog != nil {
		found := partcatalog.Part{
			PartNumber:   rec.PartNumber,
			Name:         rec.PartName,
			Category:     rec.Category,
			URL:          rec.URL,
			Discontinued: rec.Discontinued,
		}
		g.Catalog.CheckMatch(&found)
		rec.SpiderStatus = found.SpiderStatus.String()
		rec.Notes = found.Notes
	}

	if g.Output != nil {
		g.Output.Write(rec)
	}
	g.Mu.Lock()
	g.Stats.Records++
	g.Mu.Unlock()
	g.Log.Info().Str("part_number", rec.PartNumber).Str("url", rec.URL).Str("status", rec.SpiderStatus).Msg("product")
	return true
}

// NilParsePage is the dummy parser when no target is selected
func NilParsePage(ctx *Context, doc *goquery.Document) {}
