package render

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/transform"
)

// Placeholder selectors an archetype template is expected to carry
const (
	SelectTitle       = "title"
	SelectDescription = `meta[name="description"]`
	SelectCanonical   = `link[rel="canonical"]`
	SelectHeading     = "h1"
	SelectSpecs       = "table.specs tbody"
	SelectFAQ         = ".faq"
	SelectHead        = "head"
)

// Archetype is a hand-made page for one brand/category that generated parts are poured into
type Archetype struct {
	Name   string
	Source []byte
}

// ArchetypeRenderer fills archetype pages with the same PageData as the template renderer
type ArchetypeRenderer struct {
	Renderer *Renderer
	// archetypes by <brand slug>-<category slug>
	archetypes map[string]Archetype
}

// ArchetypeKey is the name an archetype file is looked up by, without the -base.html suffix
func ArchetypeKey(part *partcatalog.Part) string {
	brand := transform.Slug(part.Brand)
	if brand == "" {
		brand = "parts"
	}
	category := transform.Slug(part.Category)
	if category == "" {
		category = transform.Slug(transform.DefaultCategory)
	}
	return brand + "-" + category
}

// LoadArchetypes reads every <brand>-<category>-base.html file of dir.
// A missing directory is not an error, there are simply no archetypes.
func LoadArchetypes(r *Renderer, dir string) (*ArchetypeRenderer, error) {
	ar := &ArchetypeRenderer{Renderer: r, archetypes: map[string]Archetype{}}
	if dir == "" {
		return ar, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*-base.html"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("load archetype: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(file), "-base.html")
		ar.Add(Archetype{Name: name, Source: data})
	}
	return ar, nil
}

// Add registers an archetype
func (ar *ArchetypeRenderer) Add(archetype Archetype) {
	if ar.archetypes == nil {
		ar.archetypes = map[string]Archetype{}
	}
	ar.archetypes[archetype.Name] = archetype
}

// Len returns the number of archetypes known
func (ar *ArchetypeRenderer) Len() int {
	return len(ar.archetypes)
}

// Lookup finds the archetype a part should be rendered with
func (ar *ArchetypeRenderer) Lookup(part *partcatalog.Part) (Archetype, bool) {
	archetype, found := ar.archetypes[ArchetypeKey(part)]
	return archetype, found
}

// RenderPart renders a part into its archetype. Unmatched lists the placeholder
// selectors the archetype does not carry, so a broken template shows up in the logs.
func (ar *ArchetypeRenderer) RenderPart(archetype Archetype, part *partcatalog.Part) (page []byte, unmatched []string, err error) {
	data, err := ar.Renderer.PartPage(part)
	if err != nil {
		return nil, nil, err
	}
	return Fill(archetype.Source, &data)
}

// Fill writes the page data into the placeholders of an HTML page
func Fill(source []byte, data *PageData) (page []byte, unmatched []string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(source))
	if err != nil {
		return nil, nil, fmt.Errorf("parse archetype: %w", err)
	}

	apply := func(selector string, set func(sel *goquery.Selection)) {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			unmatched = append(unmatched, selector)
			return
		}
		set(sel)
	}

	if data.Lang != "" {
		doc.Find("html").SetAttr("lang", data.Lang)
		doc.Find("html").SetAttr("dir", data.Dir)
	}
	apply(SelectTitle, func(sel *goquery.Selection) { sel.First().SetText(data.Title) })
	apply(SelectDescription, func(sel *goquery.Selection) { sel.SetAttr("content", data.MetaDescription) })
	apply(SelectCanonical, func(sel *goquery.Selection) {
		// One canonical only
		sel.Slice(1, sel.Length()).Remove()
		sel.First().SetAttr("href", data.Canonical)
	})
	apply(SelectHeading, func(sel *goquery.Selection) { sel.First().SetText(data.Heading) })
	apply(SelectSpecs, func(sel *goquery.Selection) {
		var rows strings.Builder
		for _, row := range data.Specs {
			fmt.Fprintf(&rows, "<tr><th>%s</th><td>%s</td></tr>", html.EscapeString(row.Name), html.EscapeString(row.Value))
		}
		sel.First().SetHtml(rows.String())
	})
	apply(SelectFAQ, func(sel *goquery.Selection) {
		var faq strings.Builder
		for _, qa := range data.FAQ {
			fmt.Fprintf(&faq, "<details><summary>%s</summary><p>%s</p></details>", html.EscapeString(qa.Question), html.EscapeString(qa.Answer))
		}
		sel.First().SetHtml(faq.String())
	})
	apply(SelectHead, func(head *goquery.Selection) {
		// Old blocks are replaced, never added to
		doc.Find(`script[type="application/ld+json"]`).Remove()
		doc.Find(`link[rel="alternate"][hreflang]`).Remove()
		for _, alt := range data.Alternates {
			head.AppendHtml(fmt.Sprintf(`<link rel="alternate" hreflang="%s" href="%s">`, html.EscapeString(alt.Lang), html.EscapeString(alt.URL)))
		}
		for _, block := range data.JSONLD {
			head.AppendHtml(`<script type="application/ld+json">` + string(block) + `</script>`)
		}
	})

	result, err := doc.Html()
	if err != nil {
		return nil, nil, fmt.Errorf("serialize archetype: %w", err)
	}
	sort.Strings(unmatched)
	return []byte(result), unmatched, nil
}
