package jsonld

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProduct(t *testing.T) {
	part := &partcatalog.Part{
		PartNumber:       "11102474",
		Brand:            "Volvo",
		Name:             "Drive gear set",
		Description:      `Gear set for the "L120" wheel loader </script>`,
		Category:         "Drivetrain",
		Specs:            partcatalog.TechnicalSpecs{"Teeth": "23", "Material": "Steel"},
		CrossReferences:  []string{"VOE11102474"},
		CompatibleModels: []string{"L120E"},
	}
	product := BuildProduct(part, Options{PageURL: "https://parts.example/volvo/drivetrain/11102474.html", Currency: "USD"})
	assert.Equal(t, "Product", product.Type)
	assert.Equal(t, "Volvo Drive gear set 11102474", product.Name)
	require.Len(t, product.AdditionalProperty, 2)
	assert.Equal(t, "Material", product.AdditionalProperty[0].Name, "specs are emitted sorted")

	raw, err := Marshal(product)
	require.NoError(t, err)
	require.NoError(t, Validate(raw))
	assert.NotContains(t, string(raw), "</script>")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, part.Description, decoded["description"])

	assert.Equal(t, []string{"VOE11102474"}, ExtractCrossReferences(raw))
	assert.Equal(t, []string{"L120E"}, ExtractCompatibility(raw))
}

func TestProductNameDoesNotRepeat(t *testing.T) {
	part := &partcatalog.Part{PartNumber: "1R-0750", Brand: "CAT", Name: "CAT 1R-0750 Fuel Filter"}
	assert.Equal(t, "CAT 1R-0750 Fuel Filter", BuildProduct(part, Options{}).Name)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte(`{"@context":"https://schema.org","@type":"Product","name":"x"}`)))
	assert.NoError(t, Validate([]byte(`{"@context":"https://schema.org","@graph":[{"@type":"Product"}]}`)))
	assert.Error(t, Validate([]byte(`{"@type":"Product","description":"the "best" gear"}`)))
	assert.Error(t, Validate([]byte(`{"name":"no type"}`)))
	assert.Error(t, Validate([]byte(`"text"`)))
	assert.Error(t, Validate([]byte(`[]`)))
}

func TestTypes(t *testing.T) {
	raw := []byte(`[{"@type":"BreadcrumbList"},{"@graph":[{"@type":["Product","Thing"]}]}]`)
	assert.Equal(t, []string{"BreadcrumbList", "Product", "Thing"}, Types(raw))
	assert.Nil(t, Types([]byte(`not json`)))
}

func TestBreadcrumbsAndFAQ(t *testing.T) {
	crumbs, err := MarshalIndent(BuildBreadcrumbs([]Crumb{{Name: "Home", URL: "https://parts.example/"}, {Name: "Volvo"}}))
	require.NoError(t, err)
	assert.True(t, strings.Contains(crumbs, `"position": 2`))

	faq := BuildFAQ([]QA{{Question: `Is "11102474" genuine?`, Answer: "Yes."}})
	raw, err := Marshal(faq)
	require.NoError(t, err)
	require.NoError(t, Validate(raw))
	assert.Equal(t, []string{"FAQPage"}, Types(raw))

	_, err = ParseProduct(raw)
	assert.ErrorIs(t, err, ErrNotProduct)
}
