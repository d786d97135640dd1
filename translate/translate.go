package translate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/patch"
	"github.com/heavyparts/parts_site_builder/render"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Attributes whose values are shown to readers and therefore translated
var translatedAttrs = map[string]bool{"alt": true, "title": true, "placeholder": true, "aria-label": true}

// Translate produces the page in the dictionary language. Text and reader facing attributes
// are translated, JSON-LD and styles are left alone, lang and dir are set on <html>, and the
// canonical URL and links into the site move under /<lang>/. Phrases missing from the
// dictionary stay in English.
func Translate(page string, rel string, dict *Dictionary, site render.SiteInfo) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	replacer := dict.Replacer()
	for _, node := range doc.Nodes {
		translateNode(node, replacer)
	}
	doc.Find(`meta[name="description"], meta[property="og:title"], meta[property="og:description"]`).Each(func(i int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			s.SetAttr("content", replacer.Replace(content))
		}
	})

	doc.Find("html").SetAttr("lang", dict.Lang).SetAttr("dir", dict.Dir)

	home := site.Home()
	prefix := home + dict.Lang + "/"
	moveURL := func(s *goquery.Selection, attr string) {
		href, ok := s.Attr(attr)
		if !ok || !strings.HasPrefix(href, home) || strings.HasPrefix(href, prefix) {
			return
		}
		s.SetAttr(attr, prefix+strings.TrimPrefix(href, home))
	}
	doc.Find(`link[rel="canonical"]`).Each(func(i int, s *goquery.Selection) { moveURL(s, "href") })
	doc.Find(`meta[property="og:url"]`).Each(func(i int, s *goquery.Selection) { moveURL(s, "content") })
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) { moveURL(s, "href") })

	if len(site.Languages) > 0 {
		injectHreflang(doc, rel, site)
	}
	return doc.Html()
}

func translateNode(node *html.Node, replacer *strings.Replacer) {
	switch node.Type {
	case html.TextNode:
		node.Data = replacer.Replace(node.Data)
		return
	case html.ElementNode:
		switch node.Data {
		case "script", "style", "code", "pre":
			return
		}
		for i := range node.Attr {
			if translatedAttrs[node.Attr[i].Key] {
				node.Attr[i].Val = replacer.Replace(node.Attr[i].Val)
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		translateNode(child, replacer)
	}
}

// InjectHreflang replaces the hreflang links of a page with the full set for the site
// languages plus x-default
func InjectHreflang(page string, rel string, site render.SiteInfo) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	injectHreflang(doc, rel, site)
	return doc.Html()
}

func injectHreflang(doc *goquery.Document, rel string, site render.SiteInfo) {
	doc.Find(`link[rel="alternate"][hreflang]`).Remove()
	head := doc.Find("head").First()
	for _, alt := range render.Alternates(site.BaseURL, rel, site.Lang, site.Languages) {
		link := &html.Node{
			Type: html.ElementNode,
			Data: "link",
			Attr: []html.Attribute{{Key: "rel", Val: "alternate"}, {Key: "hreflang", Val: alt.Lang}, {Key: "href", Val: alt.URL}},
		}
		head.AppendNodes(link)
	}
}

// TreeStats counts what TranslateTree did
type TreeStats struct {
	Pages    int // source pages found
	Written  int // translated pages written
	Hreflang int // source pages whose hreflang links were updated
	Failed   int
}

// TranslateTree writes <root>/<lang>/<rel> for every page of the default language and every
// dictionary. Pages already inside a language directory are not sources. When the site has
// languages, the source pages get their hreflang links too, written only if they changed.
func TranslateTree(root string, dicts []*Dictionary, site render.SiteInfo, log zerolog.Logger) (TreeStats, error) {
	var stats TreeStats
	langDirs := map[string]bool{}
	for _, lang := range site.Languages {
		langDirs[lang] = true
	}
	for _, dict := range dicts {
		langDirs[dict.Lang] = true
	}
	delete(langDirs, site.Lang)

	pages, err := patch.Pages(root, "*.html")
	if err != nil {
		return stats, err
	}
	for _, rel := range pages {
		if first, _, found := strings.Cut(rel, "/"); found && langDirs[first] {
			continue
		}
		stats.Pages++
		filename := filepath.Join(root, filepath.FromSlash(rel))
		data, err := os.ReadFile(filename)
		if err != nil {
			return stats, err
		}
		source := string(data)

		for _, dict := range dicts {
			translated, err := Translate(source, rel, dict, site)
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("path", rel).Str("lang", dict.Lang).Msg("translation failed")
				continue
			}
			target := filepath.Join(root, dict.Lang, filepath.FromSlash(rel))
			if err := partdb.WriteFileAtomic(target, []byte(translated), 0o644); err != nil {
				return stats, fmt.Errorf("write %s: %w", target, err)
			}
			stats.Written++
		}

		if len(site.Languages) > 0 {
			updated, err := InjectHreflang(source, rel, site)
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("path", rel).Msg("hreflang failed")
				continue
			}
			if updated != source {
				if err := partdb.WriteFileAtomic(filename, []byte(updated), 0o644); err != nil {
					return stats, fmt.Errorf("write %s: %w", filename, err)
				}
				stats.Hreflang++
			}
		}
	}
	return stats, nil
}
