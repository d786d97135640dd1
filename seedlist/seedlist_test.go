package seedlist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestRead(t *testing.T) {
	entries, err := Read(strings.NewReader(`
# Volvo gears
11102474
https://www.srp.com.tr/urunler/volvo   # category
11102474

1R-0750
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"11102474", "https://www.srp.com.tr/urunler/volvo", "1R-0750"}, entries)
}

func TestToURLs(t *testing.T) {
	search := func(pn string) string { return "https://shop.example/search?q=" + pn }
	urls := ToURLs([]string{"11102474", "https://shop.example/p/1", "ftp://nope"}, search)
	assert.Equal(t, []string{
		"https://shop.example/search?q=11102474",
		"https://shop.example/p/1",
		"https://shop.example/search?q=ftp://nope",
	}, urls)
	assert.Equal(t, []string{"https://shop.example/p/1"}, ToURLs([]string{"11102474", "https://shop.example/p/1"}, nil))
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "seeds.txt"))
	assert.Error(t, err)
}

func TestRowsToCatalog(t *testing.T) {
	values := [][]interface{}{
		{"Order", "Section", "Name", "Part #", "URL", "Brand", "Status", "Notes"},
		{"1", "Drivetrain", "Drive gear set", "11102474", "https://www.srp.com.tr/urun/11102474", "volvo ce", "", "checked"},
		{"2", "Filters", "Fuel filter", "1R-0750", "", "caterpillar", "Discontinued"},
		{"3", "Filters", "Fuel filter copy", "1R-0750", "https://www.srp.com.tr/urun/dup"},
		{"4", "", "", "", ""},
		{"5", "Misc", "No part number", "", "https://www.srp.com.tr/urun/x"},
	}
	catalog, err := RowsToCatalog(values)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	gear, ok := catalog.Lookup("11102474")
	require.True(t, ok)
	assert.Equal(t, "Volvo", gear.Brand)
	assert.Equal(t, "Drivetrain", gear.Category)
	assert.Equal(t, "checked", gear.Notes)

	filter, ok := catalog.Lookup("1r0750")
	require.True(t, ok)
	assert.Equal(t, "Fuel filter", filter.Name, "first row wins")
	assert.True(t, filter.Discontinued)
	assert.Equal(t, "CAT", filter.Brand)
	assert.Len(t, catalog.Unindexed, 1)
}

func TestRowsToCatalogErrors(t *testing.T) {
	_, err := RowsToCatalog(nil)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = RowsToCatalog([][]interface{}{{"Order", "Name"}})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestLoadSheetWithoutID(t *testing.T) {
	catalog, err := LoadSheet(context.Background(), SheetConfig{})
	require.NoError(t, err)
	assert.Zero(t, catalog.Len())

	_, err = LoadSheet(context.Background(), SheetConfig{SpreadsheetID: "abc", Credentials: filepath.Join(t.TempDir(), "credentials.json")})
	assert.Error(t, err)
}

func TestTokenCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "def", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, saveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def", loaded.RefreshToken)
	assert.True(t, tok.Expiry.Equal(loaded.Expiry))
}
