package partcatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogAddPolicies(t *testing.T) {
	catalog := NewCatalog()
	assert.True(t, catalog.Add(&Part{PartNumber: "1R-0750", Name: "fuel filter"}, LastWriteWins))
	assert.False(t, catalog.Add(&Part{PartNumber: "1r0750", Name: "duplicate"}, SkipIfExists))

	part, found := catalog.Lookup("1R 0750")
	require.True(t, found)
	assert.Equal(t, "fuel filter", part.Name)

	assert.True(t, catalog.Add(&Part{PartNumber: "1r-0750", Name: "replacement"}, LastWriteWins))
	part, _ = catalog.Lookup("1R0750")
	assert.Equal(t, "replacement", part.Name)
	assert.Equal(t, 1, catalog.Len())

	assert.False(t, catalog.Add(&Part{Name: "no part number"}, LastWriteWins))
	assert.Len(t, catalog.Unindexed, 1)
	assert.Equal(t, 1, catalog.Len())
}

func TestCatalogPartsKeepsInsertionOrder(t *testing.T) {
	catalog := NewCatalogFrom([]Part{
		{PartNumber: "B"}, {PartNumber: "A"}, {PartNumber: "b"}, {PartNumber: "C"},
	}, LastWriteWins)
	parts := catalog.Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, "b", parts[0].PartNumber)
	assert.Equal(t, "A", parts[1].PartNumber)
	assert.Equal(t, "C", parts[2].PartNumber)
}

func TestCheckMatch(t *testing.T) {
	catalog := NewCatalogFrom([]Part{
		{PartNumber: "11102474", Name: "Drive Gear Set", Category: "Drivetrain", URL: "https://srp.com.tr/urun/11102474"},
		{PartNumber: "20405792", Name: "Oil Filter", URL: "https://srp.com.tr/urun/20405792"},
		{PartNumber: "8230-0001", Name: "Gone"},
	}, LastWriteWins)
	catalog.ResetSpiderStatus()

	same := &Part{PartNumber: "11102474", Name: "drive gear set", URL: "https://srp.com.tr/urun/11102474?ref=x"}
	catalog.CheckMatch(same)
	assert.Equal(t, UnchangedPart, same.SpiderStatus)
	assert.Empty(t, same.Notes)

	moved := &Part{PartNumber: "20405792", Name: "Engine Oil Filter", URL: "https://srp.com.tr/yeni/20405792"}
	catalog.CheckMatch(moved)
	assert.Equal(t, PartChanged, moved.SpiderStatus)
	assert.Contains(t, moved.Notes, "New Name:Engine Oil Filter")
	assert.Contains(t, moved.Notes, "Old URL:https://srp.com.tr/urun/20405792")
	assert.Equal(t, "Oil Filter", moved.Name)

	fresh := &Part{PartNumber: "999"}
	catalog.CheckMatch(fresh)
	assert.Equal(t, NewPart, fresh.SpiderStatus)

	missing := catalog.Missing()
	require.Len(t, missing, 1)
	assert.Equal(t, "8230-0001", missing[0].PartNumber)
}

func TestParseDuplicatePolicy(t *testing.T) {
	policy, ok := ParseDuplicatePolicy("skip")
	assert.True(t, ok)
	assert.Equal(t, SkipIfExists, policy)

	policy, ok = ParseDuplicatePolicy("")
	assert.True(t, ok)
	assert.Equal(t, LastWriteWins, policy)

	_, ok = ParseDuplicatePolicy("sometimes")
	assert.False(t, ok)
}
