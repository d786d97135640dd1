// Package sitemap writes and checks the sitemaps.org files for the generated site.
package sitemap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/patch"
)

const namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// MaxURLs is the protocol limit of URLs in one sitemap file
const MaxURLs = 50000

// File names of the entry points
const (
	IndexFile  = "sitemap_index.xml"
	SingleFile = "sitemap.xml"
)

// ErrNotSitemap is returned by Verify for XML that is neither a urlset nor a sitemapindex
var ErrNotSitemap = errors.New("not a sitemap")

// URL is one <url> entry
type URL struct {
	XMLName    xml.Name `xml:"url"`
	Loc        string   `xml:"loc"`
	LastMod    string   `xml:"lastmod,omitempty"`
	ChangeFreq string   `xml:"changefreq,omitempty"`
	Priority   string   `xml:"priority,omitempty"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

type indexEntry struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	XMLNS    string       `xml:"xmlns,attr"`
	Sitemaps []indexEntry `xml:"sitemap"`
}

// Options tunes the entries Collect produces
type Options struct {
	ChangeFreq string
	// LastMod overrides the file modification times when set
	LastMod time.Time
	// Exclude lists glob patterns of pages left out, matched like patch.Match
	Exclude []string
}

// priority by kind of page
func priority(rel string) string {
	switch {
	case rel == "index.html":
		return "1.0"
	case strings.HasPrefix(rel, "cross-reference/"):
		return "0.3"
	case path.Base(rel) == "index.html":
		return "0.8"
	}
	return "0.6"
}

// home returns the base URL with a trailing slash
func home(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/"
}

// Loc maps a page path relative to the root onto its URL. index.html pages are served as their directory.
func Loc(baseURL, rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "index.html" {
		return home(baseURL)
	}
	if path.Base(rel) == "index.html" {
		return home(baseURL) + path.Dir(rel) + "/"
	}
	return home(baseURL) + rel
}

// Collect lists every html page below root as a sitemap entry, sorted by URL
func Collect(root, baseURL string, opts Options) ([]URL, error) {
	pages, err := patch.Pages(root, "*.html")
	if err != nil {
		return nil, err
	}
	var urls []URL
	for _, rel := range pages {
		if excluded(rel, opts.Exclude) {
			continue
		}
		lastMod := opts.LastMod
		if lastMod.IsZero() {
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
			lastMod = info.ModTime()
		}
		urls = append(urls, URL{
			Loc:        Loc(baseURL, rel),
			LastMod:    lastMod.UTC().Format("2006-01-02"),
			ChangeFreq: opts.ChangeFreq,
			Priority:   priority(rel),
		})
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i].Loc < urls[j].Loc })
	return urls, nil
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if patch.Match(pattern, rel) {
			return true
		}
	}
	return false
}

// Write stores the entries in dir. Up to maxPerFile entries go into sitemap.xml,
// more are split over sitemap-1.xml, sitemap-2.xml... listed by sitemap_index.xml.
// It returns the names of the files written, the entry point first.
func Write(dir, baseURL string, urls []URL, maxPerFile int) ([]string, error) {
	if maxPerFile <= 0 || maxPerFile > MaxURLs {
		maxPerFile = MaxURLs
	}
	if len(urls) <= maxPerFile {
		if err := writeXML(filepath.Join(dir, SingleFile), urlSet{XMLNS: namespace, URLs: urls}); err != nil {
			return nil, err
		}
		if err := removeStale(dir, nil); err != nil {
			return nil, err
		}
		return []string{SingleFile}, nil
	}

	index := sitemapIndex{XMLNS: namespace}
	var parts []string
	for start, n := 0, 1; start < len(urls); start, n = start+maxPerFile, n+1 {
		end := start + maxPerFile
		if end > len(urls) {
			end = len(urls)
		}
		name := fmt.Sprintf("sitemap-%d.xml", n)
		if err := writeXML(filepath.Join(dir, name), urlSet{XMLNS: namespace, URLs: urls[start:end]}); err != nil {
			return nil, err
		}
		index.Sitemaps = append(index.Sitemaps, indexEntry{Loc: home(baseURL) + name, LastMod: newest(urls[start:end])})
		parts = append(parts, name)
	}
	if err := writeXML(filepath.Join(dir, IndexFile), index); err != nil {
		return nil, err
	}
	written := append([]string{IndexFile}, parts...)
	if err := removeStale(dir, written); err != nil {
		return nil, err
	}
	return written, nil
}

// removeStale deletes the sitemap files of an earlier run that are not in keep.
// With keep empty the single sitemap.xml is the one being kept.
func removeStale(dir string, keep []string) error {
	kept := map[string]bool{}
	for _, name := range keep {
		kept[name] = true
	}
	candidates, err := filepath.Glob(filepath.Join(dir, "sitemap-*.xml"))
	if err != nil {
		return err
	}
	if len(keep) == 0 {
		candidates = append(candidates, filepath.Join(dir, IndexFile))
	} else {
		candidates = append(candidates, filepath.Join(dir, SingleFile))
	}
	for _, filename := range candidates {
		if kept[filepath.Base(filename)] {
			continue
		}
		if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale %s: %w", filename, err)
		}
	}
	return nil
}

func newest(urls []URL) string {
	result := ""
	for _, u := range urls {
		if u.LastMod > result {
			result = u.LastMod
		}
	}
	return result
}

func writeXML(filename string, v interface{}) error {
	output, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filename, err)
	}
	content := xml.Header + string(output) + "\n"
	if err := partdb.WriteFileAtomic(filename, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// VerifyReport is the outcome of Verify
type VerifyReport struct {
	Files   []string // sitemap files read
	URLs    int
	Missing []string // locs with no file behind them
	Foreign []string // locs outside the base URL
}

// OK reports whether every loc resolved to a file
func (report *VerifyReport) OK() bool {
	return len(report.Missing) == 0 && len(report.Foreign) == 0
}

type document struct {
	XMLName  xml.Name
	URLs     []URL        `xml:"url"`
	Sitemaps []indexEntry `xml:"sitemap"`
}

// Verify parses the sitemap (or sitemap index and the sitemaps it lists) at filename
// and checks that every <loc> maps onto a file below root.
func Verify(filename, root, baseURL string) (VerifyReport, error) {
	var report VerifyReport
	err := verify(filename, root, baseURL, &report, 0)
	return report, err
}

func verify(filename, root, baseURL string, report *VerifyReport, depth int) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	report.Files = append(report.Files, filepath.Base(filename))

	switch doc.XMLName.Local {
	case "urlset":
		for _, u := range doc.URLs {
			report.URLs++
			rel, inside := relPath(baseURL, u.Loc)
			if !inside {
				report.Foreign = append(report.Foreign, u.Loc)
				continue
			}
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
				report.Missing = append(report.Missing, u.Loc)
			}
		}
	case "sitemapindex":
		if depth > 0 {
			return fmt.Errorf("%s: %w: nested sitemap index", filename, ErrNotSitemap)
		}
		for _, entry := range doc.Sitemaps {
			rel, inside := relPath(baseURL, entry.Loc)
			if !inside {
				report.Foreign = append(report.Foreign, entry.Loc)
				continue
			}
			child := filepath.Join(filepath.Dir(filename), filepath.FromSlash(path.Base(rel)))
			if err := verify(child, root, baseURL, report, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: %w: <%s>", filename, ErrNotSitemap, doc.XMLName.Local)
	}
	return nil
}

// relPath turns a loc back into the file it is served from
func relPath(baseURL, loc string) (string, bool) {
	prefix := home(baseURL)
	if !strings.HasPrefix(loc, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(loc, prefix)
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	return rel, true
}
