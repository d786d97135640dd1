package partcatalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SpiderStatus - Enum status of a scraped part compared with the part in the catalog.
// Note, when loading the catalog, all parts start out as 'Not Found' by the spider unless it already was Discontinued
type SpiderStatus int

const (
	// NewPart - part number was found on the website but was not in the catalog
	NewPart SpiderStatus = 0
	// PartNotFoundBySpider - part number from the catalog was not found on the website
	PartNotFoundBySpider SpiderStatus = 1
	// PartChanged - part number was found on website but some data didn't match.  The Notes field indicates what has changed
	PartChanged SpiderStatus = 2
	// DiscontinuedPart - part was identified as discontinued
	DiscontinuedPart SpiderStatus = 3
	// UnchangedPart - Product is the same
	UnchangedPart SpiderStatus = 4
)

func (status SpiderStatus) String() string {
	names := [...]string{
		"New",
		"Not Found by Spider",
		"Changed",
		"Discontinued",
		"Same",
	}
	if status < NewPart || status > UnchangedPart {
		return "Unknown"
	}
	return names[status]
}

// Provenance tags recorded in Part.Origin
const (
	OriginLegacy     = "legacy_original"
	OriginGodMode    = "god_mode_expansion"
	OriginNextEngine = "next_engine"
	OriginFMI        = "fmi_india"
	OriginSRP        = "srp_scrape"
	OriginSparePower = "sparepower_scrape"
)

// Part - one spare part as stored in the parts database
type Part struct {
	PartNumber       string          `json:"part_number"`
	Brand            string          `json:"brand,omitempty"`
	Name             string          `json:"product_name,omitempty"`
	Description      string          `json:"description,omitempty"`
	Category         string          `json:"category,omitempty"`
	Specs            TechnicalSpecs  `json:"technical_specs,omitempty"`
	CrossReferences  []string        `json:"cross_references,omitempty"`
	CompatibleModels []string        `json:"compatible_models,omitempty"`
	URL              string          `json:"url,omitempty"`
	Image            string          `json:"image,omitempty"`
	Slug             string          `json:"slug,omitempty"`
	JSONLD           json.RawMessage `json:"json_ld,omitempty"`
	Origin           string          `json:"_origin,omitempty"`
	Discontinued     bool            `json:"discontinued,omitempty"`

	// Reconciliation results, never persisted
	SpiderStatus SpiderStatus `json:"-"`
	Notes        string       `json:"-"`
}

// partAliases carries every field name older generations of the database used
type partAliases struct {
	PartNumber         string          `json:"part_number"`
	Brand              string          `json:"brand"`
	ProductName        string          `json:"product_name"`
	PartName           string          `json:"part_name"`
	Name               string          `json:"name"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	CleanedDescription string          `json:"Cleaned Description"`
	Category           string          `json:"category"`
	Specs              TechnicalSpecs  `json:"technical_specs"`
	CrossReferences    []string        `json:"cross_references"`
	CompatibleModels   []string        `json:"compatible_models"`
	URL                string          `json:"url"`
	Image              string          `json:"image"`
	Slug               string          `json:"slug"`
	JSONLD             json.RawMessage `json:"json_ld"`
	Origin             string          `json:"_origin"`
	DataSource         string          `json:"data_source"`
	Discontinued       bool            `json:"discontinued"`
}

// UnmarshalJSON accepts the legacy field names as well as the current ones
func (part *Part) UnmarshalJSON(data []byte) error {
	var raw partAliases
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*part = Part{
		PartNumber:       strings.TrimSpace(raw.PartNumber),
		Brand:            strings.TrimSpace(raw.Brand),
		Name:             firstNonEmpty(raw.ProductName, raw.PartName, raw.Name, raw.Title),
		Description:      firstNonEmpty(raw.Description, raw.CleanedDescription),
		Category:         strings.TrimSpace(raw.Category),
		Specs:            raw.Specs,
		CrossReferences:  raw.CrossReferences,
		CompatibleModels: raw.CompatibleModels,
		URL:              raw.URL,
		Image:            raw.Image,
		Slug:             raw.Slug,
		Origin:           firstNonEmpty(raw.Origin, raw.DataSource),
		Discontinued:     raw.Discontinued,
	}
	if len(raw.JSONLD) > 0 && string(raw.JSONLD) != "null" {
		part.JSONLD = raw.JSONLD
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Key returns the de-duplication key of the part
func (part *Part) Key() string {
	return NormalizePartNumber(part.PartNumber)
}

func (part *Part) String() string {
	return fmt.Sprintf("PN: '%v' Brand: '%v' Product: '%v' Category: '%v' on page '%v'", part.PartNumber, part.Brand, part.Name, part.Category, part.URL)
}

// NormalizePartNumber lowercases the part number and drops every rune that is not a letter or digit.
// "VOE 11-102.474" and "voe11102474" normalize to the same key.
func NormalizePartNumber(pn string) string {
	var sb strings.Builder
	sb.Grow(len(pn))
	for _, r := range strings.ToLower(pn) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// brandSynonyms maps the lowercased spellings seen in scraped data to one canonical brand
var brandSynonyms = map[string]string{
	"cat":             "CAT",
	"caterpillar":     "CAT",
	"caterpillar inc": "CAT",
	"volvo":           "Volvo",
	"volvo ce":        "Volvo",
	"volvo penta":     "Volvo Penta",
	"scania":          "Scania",
	"komatsu":         "Komatsu",
	"jcb":             "JCB",
	"hitachi":         "Hitachi",
	"liebherr":        "Liebherr",
	"man":             "MAN",
	"daf":             "DAF",
	"mercedes":        "Mercedes-Benz",
	"mercedes benz":   "Mercedes-Benz",
	"mercedes-benz":   "Mercedes-Benz",
	"john deere":      "John Deere",
	"deere":           "John Deere",
	"case":            "Case",
	"case ih":         "Case",
	"doosan":          "Doosan",
	"hyundai":         "Hyundai",
	"perkins":         "Perkins",
	"cummins":         "Cummins",
	"zf":              "ZF",
	"bosch":           "Bosch",
	"fmi":             "FMI",
	"fmi india":       "FMI",
	"sparepower":      "SparePower",
	"srp":             "SRP",
	"sandvik":         "Sandvik",
	"atlas copco":     "Atlas Copco",
	"new holland":     "New Holland",
	"bobcat":          "Bobcat",
	"terex":           "Terex",
	"manitou":         "Manitou",
	"kubota":          "Kubota",
	"yanmar":          "Yanmar",
	"deutz":           "Deutz",
	"iveco":           "Iveco",
	"renault trucks":  "Renault Trucks",
	"renault":         "Renault Trucks",
	"scania vabis":    "Scania",
	"komatsu ltd":     "Komatsu",
	"volvo trucks":    "Volvo",
}

// CanonicalBrand folds the brand synonyms down to one spelling
func CanonicalBrand(brand string) string {
	brand = strings.Join(strings.Fields(strings.ReplaceAll(brand, "\u00A0", " ")), " ")
	if brand == "" {
		return ""
	}
	if canonical, found := brandSynonyms[strings.ToLower(brand)]; found {
		return canonical
	}
	// A Caser keeps state, so each call gets its own
	return cases.Title(language.English).String(brand)
}

// TechnicalSpecs - attribute to value pairs.
// The database stores them as an object, but older files carry lists which are accepted on read
type TechnicalSpecs map[string]string

// UnmarshalJSON accepts an object, a list of name/value objects or a list of "Name: Value" strings
func (specs *TechnicalSpecs) UnmarshalJSON(data []byte) error {
	result := TechnicalSpecs{}
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null" || trimmed == "":
		*specs = nil
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for key, value := range obj {
			result.set(key, value)
		}
	case strings.HasPrefix(trimmed, "["):
		var list []interface{}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		for _, item := range list {
			switch v := item.(type) {
			case string:
				if pos := strings.Index(v, ":"); pos > 0 {
					result.set(v[:pos], v[pos+1:])
				}
			case map[string]interface{}:
				name := firstNonEmpty(scalarString(v["name"]), scalarString(v["key"]), scalarString(v["label"]))
				result.set(name, v["value"])
			}
		}
	default:
		return fmt.Errorf("technical_specs must be an object or a list, got %.20s", trimmed)
	}
	*specs = result
	return nil
}

func (specs TechnicalSpecs) set(key string, value interface{}) {
	key = strings.TrimSpace(key)
	str := strings.TrimSpace(scalarString(value))
	if key == "" || str == "" {
		return
	}
	specs[key] = str
}

func scalarString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Keys returns the attribute names in sorted order so output is stable
func (specs TechnicalSpecs) Keys() []string {
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
