// Package jsonld builds the Schema.org blocks embedded in every generated page
// and reads back the fields later stages need from blocks already in the database.
package jsonld

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/heavyparts/parts_site_builder/partcatalog"
)

const schemaContext = "https://schema.org"

// ErrNotProduct is returned when a block is valid JSON but not a Product
var ErrNotProduct = errors.New("json-ld block is not a Product")

// Brand - schema.org Brand
type Brand struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

// Offer - schema.org Offer
type Offer struct {
	Type          string `json:"@type"`
	URL           string `json:"url,omitempty"`
	PriceCurrency string `json:"priceCurrency,omitempty"`
	Availability  string `json:"availability"`
	ItemCondition string `json:"itemCondition,omitempty"`
}

// PropertyValue - schema.org PropertyValue used for the technical specs
type PropertyValue struct {
	Type  string `json:"@type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductRef - a minimal Product used for cross references and compatible machines
type ProductRef struct {
	Type string `json:"@type"`
	Name string `json:"name,omitempty"`
	MPN  string `json:"mpn,omitempty"`
}

// Product - schema.org Product
type Product struct {
	Context            string          `json:"@context,omitempty"`
	Type               string          `json:"@type"`
	Name               string          `json:"name"`
	SKU                string          `json:"sku,omitempty"`
	MPN                string          `json:"mpn,omitempty"`
	Brand              *Brand          `json:"brand,omitempty"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category,omitempty"`
	URL                string          `json:"url,omitempty"`
	Image              string          `json:"image,omitempty"`
	Offers             *Offer          `json:"offers,omitempty"`
	AdditionalProperty []PropertyValue `json:"additionalProperty,omitempty"`
	IsSimilarTo        []ProductRef    `json:"isSimilarTo,omitempty"`
	IsSparePartFor     []ProductRef    `json:"isAccessoryOrSparePartFor,omitempty"`
}

// Options carries the site-wide values that go into every block
type Options struct {
	PageURL  string
	Currency string
}

// BuildProduct makes the Product block for a part
func BuildProduct(part *partcatalog.Part, opts Options) Product {
	product := Product{
		Context:     schemaContext,
		Type:        "Product",
		Name:        ProductName(part),
		SKU:         part.PartNumber,
		MPN:         part.PartNumber,
		Description: part.Description,
		Category:    part.Category,
		URL:         opts.PageURL,
		Image:       part.Image,
	}
	if part.Brand != "" {
		product.Brand = &Brand{Type: "Brand", Name: part.Brand}
	}
	availability := "https://schema.org/InStock"
	if part.Discontinued {
		availability = "https://schema.org/Discontinued"
	}
	product.Offers = &Offer{
		Type:          "Offer",
		URL:           opts.PageURL,
		PriceCurrency: opts.Currency,
		Availability:  availability,
		ItemCondition: "https://schema.org/NewCondition",
	}
	for _, key := range part.Specs.Keys() {
		product.AdditionalProperty = append(product.AdditionalProperty, PropertyValue{Type: "PropertyValue", Name: key, Value: part.Specs[key]})
	}
	for _, ref := range part.CrossReferences {
		product.IsSimilarTo = append(product.IsSimilarTo, ProductRef{Type: "Product", MPN: ref})
	}
	for _, model := range part.CompatibleModels {
		product.IsSparePartFor = append(product.IsSparePartFor, ProductRef{Type: "Product", Name: model})
	}
	return product
}

// ProductName is the display name of a part: brand prefixed and part number appended when missing
func ProductName(part *partcatalog.Part) string {
	name := strings.TrimSpace(part.Name)
	if name == "" {
		name = "Spare part"
	}
	if part.Brand != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(part.Brand)) {
		name = part.Brand + " " + name
	}
	if !strings.Contains(partcatalog.NormalizePartNumber(name), part.Key()) {
		name += " " + part.PartNumber
	}
	return name
}

// Crumb is one step of a breadcrumb trail
type Crumb struct {
	Name string
	URL  string
}

type listItem struct {
	Type     string `json:"@type"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Item     string `json:"item,omitempty"`
}

// BreadcrumbList - schema.org BreadcrumbList
type BreadcrumbList struct {
	Context         string     `json:"@context"`
	Type            string     `json:"@type"`
	ItemListElement []listItem `json:"itemListElement"`
}

// BuildBreadcrumbs makes the BreadcrumbList for a trail
func BuildBreadcrumbs(trail []Crumb) BreadcrumbList {
	list := BreadcrumbList{Context: schemaContext, Type: "BreadcrumbList", ItemListElement: []listItem{}}
	for i, crumb := range trail {
		list.ItemListElement = append(list.ItemListElement, listItem{Type: "ListItem", Position: i + 1, Name: crumb.Name, Item: crumb.URL})
	}
	return list
}

// QA is one FAQ entry
type QA struct {
	Question string
	Answer   string
}

type answer struct {
	Type string `json:"@type"`
	Text string `json:"text"`
}

type question struct {
	Type           string `json:"@type"`
	Name           string `json:"name"`
	AcceptedAnswer answer `json:"acceptedAnswer"`
}

// FAQPage - schema.org FAQPage
type FAQPage struct {
	Context    string     `json:"@context"`
	Type       string     `json:"@type"`
	MainEntity []question `json:"mainEntity"`
}

// BuildFAQ makes the FAQPage block
func BuildFAQ(entries []QA) FAQPage {
	page := FAQPage{Context: schemaContext, Type: "FAQPage", MainEntity: []question{}}
	for _, qa := range entries {
		page.MainEntity = append(page.MainEntity, question{
			Type:           "Question",
			Name:           qa.Question,
			AcceptedAnswer: answer{Type: "Answer", Text: qa.Answer},
		})
	}
	return page
}

// Marshal encodes a block for embedding in a <script> tag.
// encoding/json escapes quotes and also <, > and & so the block can never close the script element.
func Marshal(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// MarshalIndent is Marshal for blocks that end up in a page
func MarshalIndent(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validate checks that a block parses and carries a @type
func Validate(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("invalid json-ld: %w", err)
	}
	switch v := value.(type) {
	case map[string]interface{}:
		if _, ok := v["@type"]; !ok {
			if _, graph := v["@graph"]; !graph {
				return errors.New("invalid json-ld: missing @type")
			}
		}
	case []interface{}:
		if len(v) == 0 {
			return errors.New("invalid json-ld: empty list")
		}
	default:
		return errors.New("invalid json-ld: not an object")
	}
	return nil
}

// Types returns every @type found at the top level of a block (including @graph members)
func Types(raw []byte) []string {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	var result []string
	var visit func(v interface{})
	visit = func(v interface{}) {
		switch t := v.(type) {
		case []interface{}:
			for _, item := range t {
				visit(item)
			}
		case map[string]interface{}:
			switch typ := t["@type"].(type) {
			case string:
				result = append(result, typ)
			case []interface{}:
				for _, item := range typ {
					if s, ok := item.(string); ok {
						result = append(result, s)
					}
				}
			}
			if graph, ok := t["@graph"]; ok {
				visit(graph)
			}
		}
	}
	visit(value)
	return result
}

// ParseProduct decodes a stored Product block
func ParseProduct(raw []byte) (Product, error) {
	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return product, fmt.Errorf("invalid json-ld: %w", err)
	}
	if product.Type != "Product" {
		return product, ErrNotProduct
	}
	return product, nil
}

// ExtractCrossReferences returns the part numbers listed as similar products
func ExtractCrossReferences(raw []byte) []string {
	product, err := ParseProduct(raw)
	if err != nil {
		return nil
	}
	var refs []string
	for _, ref := range product.IsSimilarTo {
		if ref.MPN != "" {
			refs = append(refs, ref.MPN)
		} else if ref.Name != "" {
			refs = append(refs, ref.Name)
		}
	}
	return refs
}

// ExtractCompatibility returns the machine models the part fits
func ExtractCompatibility(raw []byte) []string {
	product, err := ParseProduct(raw)
	if err != nil {
		return nil
	}
	var models []string
	for _, ref := range product.IsSparePartFor {
		if ref.Name != "" {
			models = append(models, ref.Name)
		}
	}
	return models
}
