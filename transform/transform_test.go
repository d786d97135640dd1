package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/heavyparts/parts_site_builder/jsonld"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/spiderdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{Origin: partcatalog.OriginSRP, BaseURL: "https://parts.example/", Currency: "USD"}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"drive gear set", "Drivetrain"},
		{"Water Pump", "Cooling"},
		{"hydraulic pump", "Hydraulics"},
		{"Fuel filter", "Filters"},
		{"fuel injector", "Fuel System"},
		{"Cylinder head gasket", "Engine"},
		{"Boom cylinder", "Hydraulics"},
		{"Track roller", "Undercarriage"},
		{"gearing lever", DefaultCategory},
		{"Headgear", DefaultCategory},
		{"", DefaultCategory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferCategory(tt.text), tt.text)
	}
}

func TestInferCategoryWithCustomRules(t *testing.T) {
	rules := []Rule{{"Seals", []string{"o-ring"}}}
	assert.Equal(t, "Seals", InferCategoryWith(rules, "Viton O-Ring 20mm"))
	assert.Equal(t, DefaultCategory, InferCategoryWith(rules, "oring"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "volvo-drive-gear-set-11102474", Slug("Volvo", "Drive gear set", "11102474"))
	assert.Equal(t, "sanziman-disli-seti-ic", Slug("Şanzıman Dişli Seti", "İç"))
	assert.Equal(t, "cab-and-body", Slug("Cab & Body"))
	assert.Equal(t, "1r-0750", Slug("  1R-0750  "))
	assert.Equal(t, "", Slug("---"))
}

func TestFromRecordScenario(t *testing.T) {
	rec := spiderdata.Record{PartNumber: "11102474", PartName: "drive gear set", Brand: "volvo ce"}
	part := FromRecord(rec, testOptions)

	assert.Equal(t, "11102474", part.PartNumber)
	assert.Equal(t, "Drivetrain", part.Category)
	assert.Equal(t, "Volvo", part.Brand)
	assert.Equal(t, partcatalog.OriginSRP, part.Origin)
	assert.Equal(t, "volvo-drive-gear-set-11102474", part.Slug)
	assert.NotEmpty(t, part.Description)

	var block map[string]interface{}
	require.NoError(t, json.Unmarshal(part.JSONLD, &block))
	assert.Equal(t, "Product", block["@type"])
	description, _ := block["description"].(string)
	assert.NotEmpty(t, description)
	assert.Equal(t, "https://parts.example/volvo/drivetrain/11102474.html", block["url"])
	assert.NoError(t, jsonld.Validate(part.JSONLD))
}

func TestFromRecordQuotesStayEscaped(t *testing.T) {
	rec := spiderdata.Record{PartNumber: "VOE123", PartName: `12" hose`, Description: `Hose "heavy duty" <b>rated</b>`}
	part := FromRecord(rec, testOptions)
	require.NoError(t, jsonld.Validate(part.JSONLD))

	product, err := jsonld.ParseProduct(part.JSONLD)
	require.NoError(t, err)
	assert.Equal(t, `Hose "heavy duty" <b>rated</b>`, product.Description)
	assert.Contains(t, string(part.JSONLD), `\"heavy duty\"`)
}

func TestFromRecordKeepsVendorCategoryWhenNoRuleMatches(t *testing.T) {
	part := FromRecord(spiderdata.Record{PartNumber: "1", PartName: "Decal", Category: " Stickers "}, Options{})
	assert.Equal(t, "Stickers", part.Category)
	assert.Equal(t, "parts/stickers/1.html", PartPath(&part))
}

func TestPartPathKeepsKeysApart(t *testing.T) {
	plain := partcatalog.Part{PartNumber: "AB-100", Brand: "Volvo", Category: "Engine"}
	umlaut := partcatalog.Part{PartNumber: "ÄB-100", Brand: "Volvo", Category: "Engine"}
	cyrillic := partcatalog.Part{PartNumber: "ЖК-77", Brand: "Volvo", Category: "Engine"}
	other := partcatalog.Part{PartNumber: "ЖЛ-77", Brand: "Volvo", Category: "Engine"}

	assert.Equal(t, "volvo/engine/ab-100.html", PartPath(&plain))
	assert.NotEqual(t, PartPath(&plain), PartPath(&umlaut))
	assert.True(t, strings.HasPrefix(PartPath(&umlaut), "volvo/engine/ab-100-"))
	assert.NotEqual(t, PartPath(&cyrillic), PartPath(&other))
	assert.Equal(t, PartPath(&cyrillic), PartPath(&partcatalog.Part{PartNumber: "жк 77", Brand: "Volvo", Category: "Engine"}),
		"the id follows the normalized key")
}

func TestNormalizeIsIdempotent(t *testing.T) {
	part := FromRecord(spiderdata.Record{
		PartNumber:       " 20405842 ",
		PartName:         "  Water   pump ",
		Brand:            "VOLVO",
		Specs:            map[string]string{"Weight": "6 kg"},
		OEMNumbers:       []string{"VOE20405842", "voe-20405842", "20405842"},
		CompatibleModels: []string{"FH12", "fh12", "FM13"},
	}, testOptions)
	assert.Equal(t, []string{"VOE20405842"}, part.CrossReferences)
	assert.Equal(t, []string{"FH12", "FM13"}, part.CompatibleModels)

	again := part
	Normalize(&again, testOptions)
	assert.Equal(t, part, again)
}

func TestGeneratedDescription(t *testing.T) {
	part := partcatalog.Part{PartNumber: "1R-0750", Brand: "CAT", Name: "Fuel filter", Category: "Filters", CompatibleModels: []string{"320D"}}
	assert.Equal(t, "CAT Fuel filter (part number 1R-0750) for 320D. Filters replacement part.", generateDescription(&part))
	assert.True(t, strings.HasPrefix(generateDescription(&partcatalog.Part{PartNumber: "X1"}), "spare part (part number X1)"))
}
