package spiderdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	records []Record
}

func (c *collector) Write(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *collector) byPart() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := map[string]Record{}
	for _, rec := range c.records {
		result[rec.PartNumber] = rec
	}
	return result
}

func TestMakeBreadCrumb(t *testing.T) {
	assert.Equal(t, "Home", MakeBreadCrumb("", "Home"))
	assert.Equal(t, "Home > Volvo Parts", MakeBreadCrumb("Home", "Volvo\u00A0Parts"))
	assert.Equal(t, "Home", MakeBreadCrumb("Home", "  "))
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in       string
		out      string
		stripped bool
	}{
		{"https://srp.example/p/1?sku=2", "https://srp.example/p/1", true},
		{"https://srp.example/p/1#tab", "https://srp.example/p/1", true},
		{"https://srp.example/p/1", "https://srp.example/p/1", false},
		{"https://srp.example/urunler/volvo?page=2", "https://srp.example/urunler/volvo?page=2", false},
		{"https://srp.example/urunler/volvo?page=2&utm_source=x#top", "https://srp.example/urunler/volvo?page=2", true},
		{"https://srp.example/arama?q=11102474", "https://srp.example/arama?q=11102474", false},
		{"https://sp.example/?s=1R-0750&post_type=product", "https://sp.example/?post_type=product&s=1R-0750", true},
		{"?only", "?only", false},
	}
	for _, tt := range tests {
		out, stripped := CleanURL(tt.in)
		assert.Equal(t, tt.out, out, tt.in)
		assert.Equal(t, tt.stripped, stripped, tt.in)
	}
}

func TestOutputRecordDeduplicatesAndReconciles(t *testing.T) {
	out := &collector{}
	target := &SpiderTarget{Name: "srp_scrape"}
	g := NewGlobals(target, out, zerolog.Nop())
	g.Catalog = partcatalog.NewCatalogFrom([]partcatalog.Part{
		{PartNumber: "VOE 11102474", Name: "Gear set", URL: "https://old.example/11102474"},
	}, partcatalog.LastWriteWins)
	g.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	ctx := &Context{G: g}

	assert.True(t, OutputRecord(ctx, Record{PartNumber: " VOE11102474 ", PartName: "Drive gear set", URL: "https://srp.example/voe11102474"}))
	assert.False(t, OutputRecord(ctx, Record{PartNumber: "voe-11102474"}), "same normalized part number")
	assert.False(t, OutputRecord(ctx, Record{PartNumber: "  "}))

	require.Len(t, out.records, 1)
	rec := out.records[0]
	assert.Equal(t, "VOE11102474", rec.PartNumber)
	assert.Equal(t, "srp_scrape", rec.Source)
	assert.Equal(t, partcatalog.PartChanged.String(), rec.SpiderStatus)
	assert.Contains(t, rec.Notes, "Old URL:https://old.example/11102474")
	assert.Equal(t, 2024, rec.ScrapedAt.Year())
	assert.Equal(t, 1, g.Stats.Duplicates)
	assert.Empty(t, g.Catalog.Missing())
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(nil, []byte("<h1>Too Many Requests</h1>")))
	assert.False(t, isRateLimited(nil, []byte("<h1>Gear</h1>")))
	assert.True(t, isRateLimited(&SpiderTarget{RateLimitMarkers: []string{"slow down"}}, []byte("please SLOW DOWN")))
}

func TestParseDocumentDecodesCharset(t *testing.T) {
	// "Dişli" in ISO-8859-9
	body := []byte("<html><body><h1>Di\xfeli kutusu</h1></body></html>")
	doc, err := parseDocument(body, "text/html; charset=iso-8859-9")
	require.NoError(t, err)
	assert.Equal(t, "Dişli kutusu", doc.Find("h1").Text())
}

func newShop(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	limited := 0
	var mu sync.Mutex
	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page(w, `<html><body>
			<a href="/p/11102474">Gear</a>
			<a href="/p/11102474?sku=1">Gear again</a>
			<a href="/p/20405842">Pump</a>
			<a href="/p/missing">Missing</a>
			<a href="https://elsewhere.example/p/1">Other shop</a>
		</body></html>`)
	})
	mux.HandleFunc("/arama", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		page(w, `<html><body><h1>Result `+q+`</h1><span class="pn">`+q+`</span></body></html>`)
	})
	mux.HandleFunc("/p/11102474", func(w http.ResponseWriter, r *http.Request) {
		page(w, `<html><body><h1>Drive gear set</h1><span class="pn">11102474</span></body></html>`)
	})
	mux.HandleFunc("/p/20405842", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		first := limited == 0
		limited++
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		page(w, `<html><body><h1>Water pump</h1><span class="pn">20405842</span></body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &limited
}

func shopParser(ctx *Context, doc *goquery.Document) {
	if pn := doc.Find("span.pn"); pn.Length() > 0 {
		OutputRecord(ctx, Record{PartNumber: pn.Text(), PartName: doc.Find("h1").Text()})
		return
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		EnqueURL(ctx, href, MakeBreadCrumb(ctx.Breadcrumb(), a.Text()))
	})
}

func testTarget(seed string) *SpiderTarget {
	return &SpiderTarget{
		Name:              "test_shop",
		Seeds:             []string{seed},
		ParsePageFunc:     shopParser,
		RateLimitDelay:    10 * time.Millisecond,
		MaxRetries:        2,
		WorkerIdleTTL:     200 * time.Millisecond,
		DisablePoliteness: true,
	}
}

func TestRunCrawlsAndRetries(t *testing.T) {
	server, _ := newShop(t)
	out := &collector{}
	target := testTarget(server.URL + "/")
	g := NewGlobals(target, out, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stats, err := Run(ctx, target, g)
	require.NoError(t, err)

	parts := out.byPart()
	require.Len(t, parts, 2)
	assert.Equal(t, "Drive gear set", parts["11102474"].PartName)
	assert.Equal(t, "Home > Gear", parts["11102474"].Breadcrumb)
	assert.Equal(t, server.URL+"/p/20405842", parts["20405842"].URL)
	assert.Equal(t, 1, stats.Retries)
	assert.Equal(t, 2, stats.Records)
}

func TestRunSearchSeeds(t *testing.T) {
	server, _ := newShop(t)
	out := &collector{}
	target := testTarget(server.URL + "/arama?q=11102474")
	target.Seeds = append(target.Seeds, server.URL+"/arama?q=20405611")
	g := NewGlobals(target, out, zerolog.Nop())
	g.SingleOnly = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stats, err := Run(ctx, target, g)
	require.NoError(t, err)

	parts := out.byPart()
	require.Len(t, parts, 2, "each search seed is its own page")
	assert.Equal(t, server.URL+"/arama?q=11102474", parts["11102474"].URL)
	assert.Equal(t, server.URL+"/arama?q=20405611", parts["20405611"].URL)
	assert.Equal(t, 2, stats.Pages)
}

func TestRunResumeSkipsDoneURLs(t *testing.T) {
	server, _ := newShop(t)
	out := &collector{}
	target := testTarget(server.URL + "/")
	g := NewGlobals(target, out, zerolog.Nop())
	g.Resume(Seen{
		URLs:  map[string]bool{server.URL + "/p/20405842": true},
		Parts: map[string]bool{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Run(ctx, target, g)
	require.NoError(t, err)

	parts := out.byPart()
	assert.Len(t, parts, 1)
	assert.Contains(t, parts, "11102474")
}

func TestRunCancelled(t *testing.T) {
	server, _ := newShop(t)
	target := testTarget(server.URL + "/")
	g := NewGlobals(target, &collector{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, target, g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNeedsSeeds(t *testing.T) {
	_, err := Run(context.Background(), &SpiderTarget{}, NewGlobals(nil, nil, zerolog.Nop()))
	assert.ErrorIs(t, err, ErrNoSeeds)
}

func TestRecordWriterAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full_dataset.jsonl")
	w, err := NewRecordWriter(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		w.Write(Record{PartNumber: fmt.Sprintf("PN-%d", i), URL: fmt.Sprintf("https://srp.example/p/%d?sku=1", i)})
	}
	require.NoError(t, w.Close())
	assert.Equal(t, 5, w.Written())

	// A second run appends
	w, err = NewRecordWriter(path)
	require.NoError(t, err)
	w.Write(Record{PartNumber: "PN-5"})
	require.NoError(t, w.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 6)

	seen, err := LoadSeen(path)
	require.NoError(t, err)
	assert.True(t, seen.Parts["pn3"])
	assert.True(t, seen.URLs["https://srp.example/p/3"])
	assert.Len(t, seen.Parts, 6)
}

func TestRecordWriterAfterCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full_dataset.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"part_number":"A1","url":"https://srp.example/p/a1"}`+"\n"+`{"part_number":"B2","ur`), 0o644))

	w, err := NewRecordWriter(path)
	require.NoError(t, err)
	w.Write(Record{PartNumber: "C3"})
	require.NoError(t, w.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	var numbers []string
	for _, rec := range records {
		numbers = append(numbers, rec.PartNumber)
	}
	assert.Equal(t, []string{"A1", "C3"}, numbers, "the cut off line is skipped, the new record survives")
}

func TestLoadSeenMissingFile(t *testing.T) {
	seen, err := LoadSeen(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, seen.URLs)
}
