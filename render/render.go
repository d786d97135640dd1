// Package render turns database entries into the static HTML pages of the site.
//
// Pages are produced from typed PageData through html/template, so a field that
// has nothing to say is simply left out instead of leaving a broken tag behind.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/heavyparts/parts_site_builder/jsonld"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/transform"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

const metaDescriptionLength = 160

// SiteInfo holds the site-wide values every page carries
type SiteInfo struct {
	BaseURL   string
	Name      string
	Lang      string
	Languages []string // every published language, including Lang
	Currency  string
}

// Home returns the site root with a trailing slash
func (site SiteInfo) Home() string {
	return strings.TrimRight(site.BaseURL, "/") + "/"
}

// URL returns the absolute URL of a path relative to the site root
func (site SiteInfo) URL(rel string) string {
	return site.Home() + strings.TrimLeft(rel, "/")
}

// SpecRow is one line of the technical specs table
type SpecRow struct {
	Name  string
	Value string
}

// Link is an entry of a listing
type Link struct {
	Name string
	URL  string
	Note string
}

// Alternate is one hreflang link
type Alternate struct {
	Lang string
	URL  string
}

// PageData holds every placeholder a page template can use
type PageData struct {
	Lang             string
	Dir              string
	SiteName         string
	Home             string
	Title            string
	MetaDescription  string
	Canonical        string
	Heading          string
	Description      string
	Image            string
	Breadcrumbs      []jsonld.Crumb
	Specs            []SpecRow
	CompatibleModels []string
	CrossReferences  []string
	FAQ              []jsonld.QA
	Links            []Link
	JSONLD           []template.JS
	Alternates       []Alternate
}

// Renderer renders pages from the part, category and intercept templates
type Renderer struct {
	Site SiteInfo
	tmpl *template.Template
}

// New parses the page templates from fsys. A nil fsys uses the built-in templates.
func New(site SiteInfo, fsys fs.FS) (*Renderer, error) {
	if fsys == nil {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	tmpl, err := template.New("site").ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for _, name := range []string{"part.html", "category.html", "intercept.html"} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("parse templates: %s is missing", name)
		}
	}
	if site.Lang == "" {
		site.Lang = "en"
	}
	return &Renderer{Site: site, tmpl: tmpl}, nil
}

func (r *Renderer) execute(name string, data *PageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) basePage(rel string) PageData {
	return PageData{
		Lang:       r.Site.Lang,
		Dir:        TextDirection(r.Site.Lang),
		SiteName:   r.Site.Name,
		Home:       r.Site.Home(),
		Alternates: Alternates(r.Site.BaseURL, rel, r.Site.Lang, r.Site.Languages),
	}
}

// PartPage fills the placeholders of a product page
func (r *Renderer) PartPage(part *partcatalog.Part) (PageData, error) {
	rel := transform.PartPath(part)
	data := r.basePage(rel)
	name := jsonld.ProductName(part)

	data.Title = name + " | " + r.Site.Name
	data.Heading = name
	data.Description = part.Description
	data.MetaDescription = Summary(part.Description, metaDescriptionLength)
	data.Canonical = r.Site.URL(rel)
	data.Image = part.Image
	data.Breadcrumbs = r.trail(part)
	for _, key := range part.Specs.Keys() {
		data.Specs = append(data.Specs, SpecRow{Name: key, Value: part.Specs[key]})
	}
	data.CompatibleModels = part.CompatibleModels
	data.CrossReferences = part.CrossReferences
	data.FAQ = partFAQ(part, name)

	product := jsonld.BuildProduct(part, jsonld.Options{PageURL: data.Canonical, Currency: r.Site.Currency})
	if err := data.addJSONLD(product, jsonld.BuildBreadcrumbs(data.Breadcrumbs), jsonld.BuildFAQ(data.FAQ)); err != nil {
		return data, fmt.Errorf("part %s: %w", part.PartNumber, err)
	}
	return data, nil
}

// RenderPart renders the product page of a part
func (r *Renderer) RenderPart(part *partcatalog.Part) ([]byte, error) {
	data, err := r.PartPage(part)
	if err != nil {
		return nil, err
	}
	return r.execute("part.html", &data)
}

// CategoryPath is the index page of a brand/category directory
func CategoryPath(part *partcatalog.Part) string {
	return path.Join(path.Dir(transform.PartPath(part)), "index.html")
}

// RenderCategory renders the listing of every part in one brand/category.
// The parts are listed by part number whatever order they come in.
func (r *Renderer) RenderCategory(brand, category string, parts []partcatalog.Part) ([]byte, error) {
	sample := partcatalog.Part{Brand: brand, Category: category}
	rel := CategoryPath(&sample)
	dirURL := r.Site.URL(path.Dir(rel) + "/")
	data := r.basePage(rel)

	label := strings.TrimSpace(brand + " " + category)
	if label == "" {
		label = transform.DefaultCategory
	}
	data.Title = label + " parts | " + r.Site.Name
	data.Heading = label + " parts"
	data.Description = fmt.Sprintf("%d %s spare parts in stock.", len(parts), label)
	data.MetaDescription = data.Description
	data.Canonical = dirURL
	data.Breadcrumbs = []jsonld.Crumb{{Name: "Home", URL: r.Site.Home()}}
	if brand != "" {
		data.Breadcrumbs = append(data.Breadcrumbs, jsonld.Crumb{Name: brand})
	}
	data.Breadcrumbs = append(data.Breadcrumbs, jsonld.Crumb{Name: nonEmpty(category, transform.DefaultCategory), URL: dirURL})

	sorted := append([]partcatalog.Part(nil), parts...)
	sortParts(sorted)
	for i := range sorted {
		part := &sorted[i]
		data.Links = append(data.Links, Link{Name: jsonld.ProductName(part), URL: r.Site.URL(transform.PartPath(part)), Note: part.PartNumber})
	}
	if err := data.addJSONLD(jsonld.BuildBreadcrumbs(data.Breadcrumbs)); err != nil {
		return nil, err
	}
	return r.execute("category.html", &data)
}

// InterceptPath is where the landing page for a competitor part number lives
func InterceptPath(competitorPN string) string {
	return "cross-reference/" + transform.Slug(competitorPN) + ".html"
}

// RenderIntercept renders the landing page for a competitor part number.
// The page is canonicalised to the product page of the equivalent part.
func (r *Renderer) RenderIntercept(competitorPN string, target *partcatalog.Part) ([]byte, error) {
	competitorPN = strings.TrimSpace(competitorPN)
	if partcatalog.NormalizePartNumber(competitorPN) == "" {
		return nil, fmt.Errorf("intercept page for %q: empty part number", competitorPN)
	}
	rel := InterceptPath(competitorPN)
	data := r.basePage(rel)
	name := jsonld.ProductName(target)
	targetURL := r.Site.URL(transform.PartPath(target))

	data.Title = competitorPN + " replacement: " + name + " | " + r.Site.Name
	data.Heading = "Replacement for part number " + competitorPN
	data.Description = fmt.Sprintf("Part number %s is interchangeable with %s.", competitorPN, name)
	data.MetaDescription = Summary(data.Description+" "+target.Description, metaDescriptionLength)
	data.Canonical = targetURL
	data.Breadcrumbs = []jsonld.Crumb{{Name: "Home", URL: r.Site.Home()}, {Name: competitorPN}}
	data.Links = []Link{{Name: name, URL: targetURL, Note: target.PartNumber}}
	data.FAQ = []jsonld.QA{{
		Question: "What replaces part number " + competitorPN + "?",
		Answer:   fmt.Sprintf("%s (part number %s) is a direct replacement for %s.", name, target.PartNumber, competitorPN),
	}}
	if err := data.addJSONLD(jsonld.BuildBreadcrumbs(data.Breadcrumbs), jsonld.BuildFAQ(data.FAQ)); err != nil {
		return nil, err
	}
	return r.execute("intercept.html", &data)
}

func (r *Renderer) trail(part *partcatalog.Part) []jsonld.Crumb {
	crumbs := []jsonld.Crumb{{Name: "Home", URL: r.Site.Home()}}
	if part.Brand != "" {
		crumbs = append(crumbs, jsonld.Crumb{Name: part.Brand})
	}
	categoryURL := r.Site.URL(path.Dir(transform.PartPath(part)) + "/")
	crumbs = append(crumbs,
		jsonld.Crumb{Name: nonEmpty(part.Category, transform.DefaultCategory), URL: categoryURL},
		jsonld.Crumb{Name: part.PartNumber, URL: r.Site.URL(transform.PartPath(part))})
	return crumbs
}

func (data *PageData) addJSONLD(blocks ...interface{}) error {
	for _, block := range blocks {
		raw, err := jsonld.Marshal(block)
		if err != nil {
			return fmt.Errorf("json-ld: %w", err)
		}
		// jsonld.Marshal escapes <, > and & so the block cannot end the script element
		data.JSONLD = append(data.JSONLD, template.JS(raw))
	}
	return nil
}

func partFAQ(part *partcatalog.Part, name string) []jsonld.QA {
	var faq []jsonld.QA
	if len(part.CompatibleModels) > 0 {
		faq = append(faq, jsonld.QA{
			Question: "Which machines does part number " + part.PartNumber + " fit?",
			Answer:   name + " fits " + strings.Join(part.CompatibleModels, ", ") + ".",
		})
	}
	if len(part.CrossReferences) > 0 {
		faq = append(faq, jsonld.QA{
			Question: "Which part numbers does " + part.PartNumber + " replace?",
			Answer:   part.PartNumber + " is interchangeable with " + strings.Join(part.CrossReferences, ", ") + ".",
		})
	}
	availability := name + " is in stock and ships worldwide."
	if part.Discontinued {
		availability = name + " is discontinued. Contact us for an equivalent part."
	}
	faq = append(faq, jsonld.QA{Question: "Is part number " + part.PartNumber + " available?", Answer: availability})
	return faq
}

// Summary shortens text to at most limit runes, cutting at a word boundary
func Summary(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit-1])
	if pos := strings.LastIndex(cut, " "); pos > 0 {
		cut = cut[:pos]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// Alternates lists the hreflang links of a page published in every language.
// The default language lives at the site root, the others under /<lang>/.
func Alternates(baseURL, rel, defaultLang string, langs []string) []Alternate {
	if len(langs) == 0 {
		return nil
	}
	home := strings.TrimRight(baseURL, "/") + "/"
	rel = strings.TrimLeft(rel, "/")
	var result []Alternate
	seen := map[string]bool{}
	for _, lang := range langs {
		if seen[lang] {
			continue
		}
		seen[lang] = true
		if lang == defaultLang {
			result = append(result, Alternate{Lang: lang, URL: home + rel})
		} else {
			result = append(result, Alternate{Lang: lang, URL: home + lang + "/" + rel})
		}
	}
	return append(result, Alternate{Lang: "x-default", URL: home + rel})
}

var rtlScripts = map[string]bool{"Arab": true, "Hebr": true, "Thaa": true, "Syrc": true}

// TextDirection is "rtl" for languages written right to left, "ltr" otherwise
func TextDirection(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return "ltr"
	}
	script, _ := tag.Script()
	if rtlScripts[script.String()] {
		return "rtl"
	}
	return "ltr"
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
