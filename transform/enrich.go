package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/spiderdata"
)

// Enrichment is one entry of enriched_product_data.json, the output of the AI text generation
type Enrichment struct {
	PartNumber       string                     `json:"part_number"`
	Description      string                     `json:"description"`
	Specs            partcatalog.TechnicalSpecs `json:"technical_specs"`
	CompatibleModels []string                   `json:"compatible_models"`
}

// EnrichStats counts what an enrichment pass changed
type EnrichStats struct {
	Matched      int
	Descriptions int
	SpecsAdded   int
	Filled       int
}

// LoadEnrichment reads the enrichment file. It is either an object keyed by part number
// or a list of entries carrying part_number.  Keys of the result are normalized part numbers.
func LoadEnrichment(path string) (map[string]Enrichment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read enrichment: %w", err)
	}
	return ParseEnrichment(data)
}

// ParseEnrichment is LoadEnrichment on bytes
func ParseEnrichment(data []byte) (map[string]Enrichment, error) {
	result := map[string]Enrichment{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Enrichment
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse enrichment: %w", err)
		}
		for _, entry := range list {
			if key := partcatalog.NormalizePartNumber(entry.PartNumber); key != "" {
				result[key] = entry
			}
		}
		return result, nil
	}

	var keyed map[string]Enrichment
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("parse enrichment: %w", err)
	}
	for pn, entry := range keyed {
		if entry.PartNumber == "" {
			entry.PartNumber = pn
		}
		if key := partcatalog.NormalizePartNumber(pn); key != "" {
			result[key] = entry
		}
	}
	return result, nil
}

// Enrich merges the AI enrichment into the parts, only where it adds something:
// a longer description replaces a shorter one and spec keys are added, never overwritten.
func Enrich(parts []partcatalog.Part, enriched map[string]Enrichment, opts Options) EnrichStats {
	var stats EnrichStats
	for i := range parts {
		part := &parts[i]
		entry, found := enriched[part.Key()]
		if !found {
			continue
		}
		stats.Matched++
		changed := false

		description := cleanText(entry.Description)
		if len(description) > len(part.Description) {
			part.Description = description
			stats.Descriptions++
			changed = true
		}
		if added := addSpecs(part, entry.Specs); added > 0 {
			stats.SpecsAdded += added
			changed = true
		}
		if models := uniqueStrings(append(append([]string{}, part.CompatibleModels...), entry.CompatibleModels...)); len(models) > len(part.CompatibleModels) {
			part.CompatibleModels = models
			changed = true
		}
		if changed {
			RefreshJSONLD(part, opts)
		}
	}
	return stats
}

// EnrichFromScrape fills blanks in the parts from scraped records and unions their specs,
// cross references and compatible models. A record matches a part by its own part number
// or by any of its OEM numbers.
func EnrichFromScrape(parts []partcatalog.Part, records []spiderdata.Record, opts Options) EnrichStats {
	index := map[string]*spiderdata.Record{}
	for i := range records {
		rec := &records[i]
		if key := partcatalog.NormalizePartNumber(rec.PartNumber); key != "" {
			index[key] = rec
		}
	}
	for i := range records {
		rec := &records[i]
		for _, oem := range rec.OEMNumbers {
			if key := partcatalog.NormalizePartNumber(oem); key != "" {
				if _, taken := index[key]; !taken {
					index[key] = rec
				}
			}
		}
	}

	var stats EnrichStats
	for i := range parts {
		part := &parts[i]
		rec, found := index[part.Key()]
		if !found {
			continue
		}
		stats.Matched++
		changed := false

		fill := func(field *string, value string) {
			if strings.TrimSpace(*field) == "" && strings.TrimSpace(value) != "" {
				*field = cleanText(value)
				stats.Filled++
				changed = true
			}
		}
		fill(&part.Name, rec.PartName)
		fill(&part.Description, rec.Description)
		fill(&part.Image, rec.Image)
		if part.Brand == "" && rec.Brand != "" {
			part.Brand = partcatalog.CanonicalBrand(rec.Brand)
			stats.Filled++
			changed = true
		}

		if added := addSpecs(part, rec.Specs); added > 0 {
			stats.SpecsAdded += added
			changed = true
		}
		refs := rec.OEMNumbers
		if partcatalog.NormalizePartNumber(rec.PartNumber) != part.Key() {
			refs = append([]string{rec.PartNumber}, refs...)
		}
		if merged := uniqueNumbers(append(append([]string{}, part.CrossReferences...), refs...), part.Key()); len(merged) > len(part.CrossReferences) {
			part.CrossReferences = merged
			changed = true
		}
		if models := uniqueStrings(append(append([]string{}, part.CompatibleModels...), rec.CompatibleModels...)); len(models) > len(part.CompatibleModels) {
			part.CompatibleModels = models
			changed = true
		}
		if changed {
			RefreshJSONLD(part, opts)
		}
	}
	return stats
}

func addSpecs(part *partcatalog.Part, specs map[string]string) int {
	added := 0
	for key, value := range specs {
		key, value = cleanText(key), cleanText(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := part.Specs[key]; exists {
			continue
		}
		if part.Specs == nil {
			part.Specs = partcatalog.TechnicalSpecs{}
		}
		part.Specs[key] = value
		added++
	}
	return added
}
