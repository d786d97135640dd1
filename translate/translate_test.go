package translate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/render"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const turkish = `
lang: tr
entries:
  - en: Fuel filter
    text: Yakıt filtresi
  - en: Fuel
    text: Yakıt
  - en: Home
    text: Ana Sayfa
  - en: in stock
    text: stokta
`

const page = `<!DOCTYPE html><html lang="en" dir="ltr"><head><title>Fuel filter | Heavy Parts</title>
<meta name="description" content="Fuel filter in stock">
<link rel="canonical" href="https://parts.example/cat/filters/1r-0750.html">
<link rel="alternate" hreflang="de" href="https://parts.example/de/old.html">
<script type="application/ld+json">{"@type":"Product","name":"Fuel filter"}</script>
</head><body><nav><a href="https://parts.example/">Home</a></nav>
<h1>Fuel filter</h1><p>Fuel pump and Fuel filter in stock.</p><img src="/f.jpg" alt="Fuel filter">
<a href="https://elsewhere.example/">Home</a></body></html>`

var site = render.SiteInfo{BaseURL: "https://parts.example/", Name: "Heavy Parts", Lang: "en", Languages: []string{"en", "tr", "ar"}}

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestParseDictionary(t *testing.T) {
	dict, err := ParseDictionary([]byte(turkish))
	require.NoError(t, err)
	assert.Equal(t, "tr", dict.Lang)
	assert.Equal(t, "ltr", dict.Dir)
	assert.Len(t, dict.Entries, 4)

	arabic, err := ParseDictionary([]byte("lang: ar\nentries: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "rtl", arabic.Dir)

	_, err = ParseDictionary([]byte("lang: '??'\n"))
	assert.ErrorIs(t, err, ErrBadDictionary)
	_, err = ParseDictionary([]byte("lang: tr\ndir: sideways\n"))
	assert.ErrorIs(t, err, ErrBadDictionary)
}

func TestReplacerLongestFirst(t *testing.T) {
	dict, err := ParseDictionary([]byte(turkish))
	require.NoError(t, err)
	assert.Equal(t, "Yakıt pompası, Yakıt filtresi", strings.NewReplacer("pump", "pompası").Replace(dict.Replacer().Replace("Fuel pump, Fuel filter")))
}

func TestTranslate(t *testing.T) {
	dict, err := ParseDictionary([]byte(turkish))
	require.NoError(t, err)
	out, err := Translate(page, "cat/filters/1r-0750.html", dict, site)
	require.NoError(t, err)
	doc := parse(t, out)

	lang, _ := doc.Find("html").Attr("lang")
	dir, _ := doc.Find("html").Attr("dir")
	assert.Equal(t, "tr", lang)
	assert.Equal(t, "ltr", dir)
	assert.Equal(t, "Yakıt filtresi | Heavy Parts", doc.Find("title").Text())
	assert.Equal(t, "Yakıt filtresi", doc.Find("h1").Text())
	assert.Equal(t, "Yakıt pump and Yakıt filtresi stokta.", doc.Find("p").Text(), "unknown words stay English")
	alt, _ := doc.Find("img").Attr("alt")
	assert.Equal(t, "Yakıt filtresi", alt)
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	assert.Equal(t, "Yakıt filtresi stokta", description)
	assert.Contains(t, doc.Find(`script[type="application/ld+json"]`).Text(), `"name":"Fuel filter"`)

	canonical, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	assert.Equal(t, "https://parts.example/tr/cat/filters/1r-0750.html", canonical)
	home, _ := doc.Find("nav a").Attr("href")
	assert.Equal(t, "https://parts.example/tr/", home)
	external, _ := doc.Find("body > a").Attr("href")
	assert.Equal(t, "https://elsewhere.example/", external)

	var hreflangs []string
	doc.Find(`link[rel="alternate"]`).Each(func(i int, s *goquery.Selection) {
		lang, _ := s.Attr("hreflang")
		href, _ := s.Attr("href")
		hreflangs = append(hreflangs, lang+" "+href)
	})
	assert.Equal(t, []string{
		"en https://parts.example/cat/filters/1r-0750.html",
		"tr https://parts.example/tr/cat/filters/1r-0750.html",
		"ar https://parts.example/ar/cat/filters/1r-0750.html",
		"x-default https://parts.example/cat/filters/1r-0750.html",
	}, hreflangs)

	again, err := Translate(page, "cat/filters/1r-0750.html", dict, site)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestInjectHreflangReplacesOldLinks(t *testing.T) {
	out, err := InjectHreflang(page, "cat/filters/1r-0750.html", site)
	require.NoError(t, err)
	doc := parse(t, out)
	assert.Equal(t, 4, doc.Find(`link[hreflang]`).Length())
	assert.Equal(t, 0, doc.Find(`link[hreflang="de"]`).Length())

	twice, err := InjectHreflang(out, "cat/filters/1r-0750.html", site)
	require.NoError(t, err)
	assert.Equal(t, out, twice)
}

func TestTranslateTree(t *testing.T) {
	root := t.TempDir()
	dictDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dictDir, "tr.yaml"), []byte(turkish), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dictDir, "ar.yml"), []byte("lang: ar\nentries:\n  - en: Home\n    text: الرئيسية\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dictDir, "README.md"), []byte("x"), 0o644))
	dicts, err := LoadDictionaries(dictDir)
	require.NoError(t, err)
	require.Len(t, dicts, 2)
	assert.Equal(t, "ar", dicts[0].Lang)

	source := filepath.Join(root, "cat", "filters", "1r-0750.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0o755))
	require.NoError(t, os.WriteFile(source, []byte(page), 0o644))

	stats, err := TranslateTree(root, dicts, site, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, TreeStats{Pages: 1, Written: 2, Hreflang: 1}, stats)

	arabic, err := os.ReadFile(filepath.Join(root, "ar", "cat", "filters", "1r-0750.html"))
	require.NoError(t, err)
	doc := parse(t, string(arabic))
	dir, _ := doc.Find("html").Attr("dir")
	assert.Equal(t, "rtl", dir)
	assert.Equal(t, "الرئيسية", doc.Find("nav a").Text())

	// The translated pages are not sources the second time round
	stats, err = TranslateTree(root, dicts, site, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, TreeStats{Pages: 1, Written: 2, Hreflang: 0}, stats)
}

func TestLoadDictionariesRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("lang: tr\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("lang: TR\n"), 0o644))
	_, err := LoadDictionaries(dir)
	assert.ErrorIs(t, err, ErrBadDictionary)
}
