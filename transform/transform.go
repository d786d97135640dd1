// Package transform maps scraped records onto the parts database schema:
// category inference, slugs, generated descriptions and the JSON-LD block.
package transform

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/heavyparts/parts_site_builder/jsonld"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/spiderdata"
)

// Options carries the site settings baked into every record
type Options struct {
	Origin   string // provenance tag when the record does not carry one
	BaseURL  string // site root, used for the JSON-LD url
	Currency string
}

// PartPath is where the page for a part lives: <brand>/<category>/<part_number>.html
func PartPath(part *partcatalog.Part) string {
	brand := Slug(part.Brand)
	if brand == "" {
		brand = "parts"
	}
	category := Slug(part.Category)
	if category == "" {
		category = Slug(DefaultCategory)
	}
	return brand + "/" + category + "/" + FileName(part) + ".html"
}

// FileName is the page name of a part: the slug of its part number. When the slug lost
// letters of the key (ÄB-100 folds to ab-100, ЖК-77 to 77) a short id derived from the key
// is appended, so different keys never share a file.
func FileName(part *partcatalog.Part) string {
	name := Slug(part.PartNumber)
	key := part.Key()
	if strings.ReplaceAll(name, "-", "") == key {
		return name
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()[:8]
	if name == "" {
		return id
	}
	return name + "-" + id
}

// PartURL is the absolute URL of the page for a part
func PartURL(baseURL string, part *partcatalog.Part) string {
	return strings.TrimRight(baseURL, "/") + "/" + PartPath(part)
}

// FromRecord converts a scraped record into a database entry
func FromRecord(rec spiderdata.Record, opts Options) partcatalog.Part {
	part := partcatalog.Part{
		PartNumber:       strings.TrimSpace(rec.PartNumber),
		Brand:            rec.Brand,
		Name:             rec.PartName,
		Description:      rec.Description,
		URL:              rec.URL,
		Image:            rec.Image,
		Discontinued:     rec.Discontinued,
		Origin:           rec.Source,
		CrossReferences:  rec.OEMNumbers,
		CompatibleModels: rec.CompatibleModels,
	}
	if len(rec.Specs) > 0 {
		part.Specs = partcatalog.TechnicalSpecs{}
		for key, value := range rec.Specs {
			part.Specs[key] = value
		}
	}
	if opts.Origin != "" {
		part.Origin = opts.Origin
	}

	// The scraped category is a vendor's menu name; only keep it when no rule knows better
	part.Category = InferCategory(part.Name, rec.Category, part.Description)
	if part.Category == DefaultCategory && strings.TrimSpace(rec.Category) != "" {
		part.Category = strings.TrimSpace(rec.Category)
	}
	Normalize(&part, opts)
	return part
}

// Normalize cleans a database entry in place and rebuilds its derived fields.
// Running it twice gives the same result as running it once.
func Normalize(part *partcatalog.Part, opts Options) {
	part.PartNumber = strings.TrimSpace(part.PartNumber)
	part.Brand = partcatalog.CanonicalBrand(part.Brand)
	part.Name = cleanText(part.Name)
	part.Description = cleanText(part.Description)
	part.Category = cleanText(part.Category)
	if part.Category == "" {
		part.Category = InferCategory(part.Name, part.Description)
	}
	if part.Origin == "" {
		part.Origin = opts.Origin
	}
	part.CrossReferences = uniqueNumbers(part.CrossReferences, part.Key())
	part.CompatibleModels = uniqueStrings(part.CompatibleModels)
	if part.Description == "" {
		part.Description = generateDescription(part)
	}
	part.Slug = Slug(part.Brand, part.Name, part.PartNumber)
	RefreshJSONLD(part, opts)
}

// RefreshJSONLD rebuilds the stored Product block from the record
func RefreshJSONLD(part *partcatalog.Part, opts Options) {
	pageURL := ""
	if opts.BaseURL != "" {
		pageURL = PartURL(opts.BaseURL, part)
	}
	raw, err := jsonld.Marshal(jsonld.BuildProduct(part, jsonld.Options{PageURL: pageURL, Currency: opts.Currency}))
	if err != nil {
		return
	}
	part.JSONLD = raw
}

func generateDescription(part *partcatalog.Part) string {
	name := part.Name
	if name == "" {
		name = "spare part"
	}
	text := strings.TrimSpace(fmt.Sprintf("%s %s (part number %s)", part.Brand, name, part.PartNumber))
	if len(part.CompatibleModels) > 0 {
		text += " for " + strings.Join(part.CompatibleModels, ", ")
	}
	text += "."
	if part.Category != "" && part.Category != DefaultCategory {
		text += " " + part.Category + " replacement part."
	}
	return text
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func uniqueStrings(values []string) []string {
	var result []string
	seen := map[string]bool{}
	for _, value := range values {
		value = cleanText(value)
		key := strings.ToLower(value)
		if value == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, value)
	}
	return result
}

// uniqueNumbers drops repeats of the same normalized number and the part's own number
func uniqueNumbers(values []string, own string) []string {
	var result []string
	seen := map[string]bool{own: true}
	for _, value := range values {
		value = cleanText(value)
		key := partcatalog.NormalizePartNumber(value)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, value)
	}
	return result
}
