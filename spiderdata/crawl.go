package spiderdata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/fetchbot"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// ErrNoSeeds is returned when a target has nothing to start from
var ErrNoSeeds = errors.New("spider target has no seed URLs")

var defaultRateLimitMarkers = []string{"too many requests", "rate limit exceeded"}

// Run crawls a target until the queue drains or ctx is cancelled
func Run(ctx context.Context, target *SpiderTarget, g *Globals) (Stats, error) {
	if len(target.Seeds) == 0 {
		return Stats{}, ErrNoSeeds
	}
	if err := g.AddSeedHosts(target.Seeds...); err != nil {
		return Stats{}, err
	}
	g.TargetConfig = target
	g.stop = ctx.Done()

	// Create the muxer
	mux := fetchbot.NewMux()

	// Handle all errors the same
	mux.HandleErrors(fetchbot.HandlerFunc(func(fctx *fetchbot.Context, res *http.Response, err error) {
		g.Log.Error().Err(err).Str("method", fctx.Cmd.Method()).Str("url", fctx.Cmd.URL().String()).Msg("[ERR]")
		g.Mu.Lock()
		g.Stats.Errors++
		g.Mu.Unlock()
	}))

	// Handle GET requests for html responses, to parse the body and let the target
	// enqueue the links it cares about as HEAD requests.
	mux.Response().Method("GET").ContentType("text/html").Handler(fetchbot.HandlerFunc(
		func(fctx *fetchbot.Context, res *http.Response, err error) {
			handlePage(&Context{Cmd: fctx.Cmd, Q: fctx.Q, G: g}, res)
		}))

	// Handle HEAD requests for html responses coming from the seed hosts - we don't want
	// to crawl links from other hosts.
	hosts := make([]string, 0, len(g.hosts))
	for host := range g.hosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		mux.Response().Method("HEAD").Host(host).ContentType("text/html").Handler(fetchbot.HandlerFunc(
			func(fctx *fetchbot.Context, res *http.Response, err error) {
				if res.StatusCode >= http.StatusBadRequest {
					return
				}
				if _, err := fctx.Q.SendStringGet(fctx.Cmd.URL().String()); err != nil {
					g.Log.Error().Err(err).Str("method", fctx.Cmd.Method()).Str("url", fctx.Cmd.URL().String()).Msg("[ERR]")
				}
			}))
	}

	// Create the Fetcher, handle the logging first, then the rate limiting, then dispatch to the Muxer
	h := logHandler(g, retryHandler(g, mux))
	if target.StopAtURL != "" {
		h = stopHandler(g, target.StopAtURL, h)
	}
	f := fetchbot.New(h)
	if target.UserAgent != "" {
		f.UserAgent = target.UserAgent
	}
	f.CrawlDelay = target.CrawlDelay
	if target.WorkerIdleTTL > 0 {
		f.WorkerIdleTTL = target.WorkerIdleTTL
	}
	f.DisablePoliteness = target.DisablePoliteness
	f.AutoClose = true
	if target.HTTPClient != nil {
		f.HttpClient = target.HTTPClient
	}

	if g.Catalog != nil {
		g.Catalog.ResetSpiderStatus()
	}

	// First mem stat must be right after creating the fetchbot
	if target.MemStats > 0 {
		logMemStats(g, nil)
		statsCtx, stopStats := context.WithCancel(ctx)
		runMemStats(statsCtx, g, f, target.MemStats)
		defer func() {
			stopStats()
			runtime.GC()
			logMemStats(g, nil)
		}()
	}

	// Start processing
	q := f.Start()
	if target.StopAfter > 0 {
		go func() {
			select {
			case <-time.After(target.StopAfter):
				g.Log.Info().Dur("after", target.StopAfter).Msg("stopping the crawl")
				q.Close()
			case <-q.Done():
			}
		}()
	}
	go func() {
		select {
		case <-ctx.Done():
			q.Cancel()
		case <-q.Done():
		}
	}()

	for _, seed := range target.Seeds {
		preloadQueueURL(g, q, seed, "Home")
	}
	// Revisit every catalog page on our hosts so moved or discontinued parts are noticed
	if g.Catalog != nil && !g.SingleOnly {
		for _, part := range g.Catalog.Parts() {
			if u, err := url.Parse(part.URL); err == nil && g.hosts[u.Host] {
				preloadQueueURL(g, q, part.URL, part.Category)
			}
		}
	}

	q.Block()

	if g.Catalog != nil && ctx.Err() == nil {
		for _, missing := range g.Catalog.Missing() {
			g.Log.Warn().Str("part_number", missing.PartNumber).Str("url", missing.URL).Msg(missing.SpiderStatus.String())
			g.Mu.Lock()
			g.Stats.Missing++
			g.Mu.Unlock()
		}
	}

	g.Mu.Lock()
	stats := g.Stats
	g.Mu.Unlock()
	return stats, ctx.Err()
}

func preloadQueueURL(g *Globals, q *fetchbot.Queue, rawURL string, breadcrumb string) {
	urlString, _ := CleanURL(rawURL)
	g.Mu.Lock()
	_, found := g.BreadcrumbMap[urlString]
	if !found {
		g.BreadcrumbMap[urlString] = breadcrumb
	}
	g.Mu.Unlock()
	if found {
		return
	}
	g.Log.Debug().Str("url", urlString).Msg("Queueing")
	if _, err := q.SendStringGet(urlString); err != nil {
		g.Log.Error().Err(err).Str("url", urlString).Msg("[ERR] GET")
	}
}

// handlePage decodes an html response and hands it to the target's parser
func handlePage(ctx *Context, res *http.Response) {
	g := ctx.G
	if res.StatusCode >= http.StatusBadRequest {
		g.Log.Warn().Int("status", res.StatusCode).Str("url", ctx.Cmd.URL().String()).Msg("skipping page")
		return
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		g.Log.Error().Err(err).Str("url", ctx.Cmd.URL().String()).Msg("[ERR] read body")
		return
	}
	if isRateLimited(g.TargetConfig, body) {
		retryLater(ctx, "rate limit page")
		return
	}
	doc, err := parseDocument(body, res.Header.Get("Content-Type"))
	if err != nil {
		g.Log.Error().Err(err).Str("url", ctx.Cmd.URL().String()).Msg("[ERR] parse")
		return
	}
	g.Mu.Lock()
	g.Stats.Pages++
	g.Mu.Unlock()

	parse := NilParsePage
	if g.TargetConfig != nil && g.TargetConfig.ParsePageFunc != nil {
		parse = g.TargetConfig.ParsePageFunc
	}
	parse(ctx, doc)
}

// parseDocument converts the body to UTF-8 using the declared or sniffed charset
func parseDocument(body []byte, contentType string) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(r)
}

func isRateLimited(target *SpiderTarget, body []byte) bool {
	markers := defaultRateLimitMarkers
	if target != nil && len(target.RateLimitMarkers) > 0 {
		markers = target.RateLimitMarkers
	}
	// Real product pages are big; a block page is a few lines
	if len(body) > 64*1024 {
		return false
	}
	text := strings.ToLower(string(body))
	for _, marker := range markers {
		if strings.Contains(text, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// retryLater waits out a rate limit and puts the command back on the queue
func retryLater(ctx *Context, reason string) {
	g := ctx.G
	method := ctx.Cmd.Method()
	target := ctx.Cmd.URL().String()

	maxRetries, delay := 0, time.Duration(0)
	if g.TargetConfig != nil {
		maxRetries, delay = g.TargetConfig.MaxRetries, g.TargetConfig.RateLimitDelay
	}

	g.Mu.Lock()
	key := method + " " + target
	g.retries[key]++
	attempt := g.retries[key]
	if attempt <= maxRetries {
		g.Stats.Retries++
	} else {
		g.Stats.Errors++
	}
	g.Mu.Unlock()

	if attempt > maxRetries {
		g.Log.Error().Str("url", target).Int("attempts", attempt).Msg("giving up after rate limiting")
		return
	}
	g.Log.Warn().Str("url", target).Str("reason", reason).Dur("delay", delay).Int("attempt", attempt).Msg("rate limited")

	// Sleeping here also holds back every other request to this host
	select {
	case <-time.After(delay):
	case <-g.stop:
		return
	}
	if _, err := ctx.Q.SendString(method, target); err != nil {
		g.Log.Error().Err(err).Str("url", target).Msg("[ERR] requeue")
	}
}

// retryHandler intercepts 429 responses before the mux sees them
func retryHandler(g *Globals, wrapped fetchbot.Handler) fetchbot.Handler {
	return fetchbot.HandlerFunc(func(fctx *fetchbot.Context, res *http.Response, err error) {
		if err == nil && res.StatusCode == http.StatusTooManyRequests {
			retryLater(&Context{Cmd: fctx.Cmd, Q: fctx.Q, G: g}, "429")
			return
		}
		wrapped.Handle(fctx, res, err)
	})
}

// stopHandler stops the fetcher if the stopurl is reached. Otherwise it dispatches
// the call to the wrapped Handler.
func stopHandler(g *Globals, stopurl string, wrapped fetchbot.Handler) fetchbot.Handler {
	return fetchbot.HandlerFunc(func(fctx *fetchbot.Context, res *http.Response, err error) {
		if fctx.Cmd.URL().String() == stopurl {
			g.Log.Info().Str("url", stopurl).Msg(">>>>> STOP URL")
			// generally not a good idea to stop/block from a handler goroutine
			// so do it in a separate goroutine
			go func() {
				fctx.Q.Close()
			}()
			return
		}
		wrapped.Handle(fctx, res, err)
	})
}

// logHandler logs the fetch information and dispatches the call to the wrapped Handler.
func logHandler(g *Globals, wrapped fetchbot.Handler) fetchbot.Handler {
	return fetchbot.HandlerFunc(func(fctx *fetchbot.Context, res *http.Response, err error) {
		if err == nil {
			g.Log.Info().Str("content_type", res.Header.Get("Content-Type")).
				Msgf("[%d] %s %s", res.StatusCode, fctx.Cmd.Method(), fctx.Cmd.URL())
		}
		wrapped.Handle(fctx, res, err)
	})
}
