package seedlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNoData is returned for a sheet without a header row
var ErrNoData = errors.New("no data in spreadsheet")

// SheetConfig says where the reference spreadsheet lives and how to authenticate
type SheetConfig struct {
	SpreadsheetID string
	Range         string // sheet name, "All" if empty
	Credentials   string // OAuth client secret file
	TokenFile     string // cached user token
	// Where the authorization code is read from on the first run
	Prompt io.Reader
	Out    io.Writer
}

// LoadSheet reads the reference spreadsheet into a catalog.
// The first row names the columns; "Part #" and "URL" are the ones that matter.
func LoadSheet(ctx context.Context, cfg SheetConfig) (*partcatalog.Catalog, error) {
	if cfg.SpreadsheetID == "" {
		return partcatalog.NewCatalog(), nil
	}
	b, err := os.ReadFile(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	// If modifying these scopes, delete your previously saved token.json.
	config, err := google.ConfigFromJSON(b, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	client, err := getClient(ctx, config, cfg)
	if err != nil {
		return nil, err
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}

	readRange := cfg.Range
	if readRange == "" {
		readRange = "All"
	}
	response, err := srv.Spreadsheets.Values.Get(cfg.SpreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to read %q sheet in spreadsheet %s: %w", readRange, cfg.SpreadsheetID, err)
	}
	return RowsToCatalog(response.Values)
}

// columns holds where each field lives, -1 when the sheet does not have it
type columns struct {
	partNumber, url, name, section, brand, status, notes int
}

func getColumnIndexes(header []interface{}) columns {
	cols := columns{-1, -1, -1, -1, -1, -1, -1}
	for jj, col := range header {
		switch strings.TrimSpace(fmt.Sprint(col)) {
		case "Part #", "Part Number", "SKU":
			cols.partNumber = jj
		case "URL":
			cols.url = jj
		case "Name":
			cols.name = jj
		case "Section", "Category":
			cols.section = jj
		case "Brand":
			cols.brand = jj
		case "Status", "Spider Status":
			cols.status = jj
		case "Notes":
			cols.notes = jj
		}
	}
	return cols
}

// RowsToCatalog converts sheet values (header row first) into a catalog.
// Rows without a part number are kept unindexed; a repeated part number keeps the first row.
func RowsToCatalog(values [][]interface{}) (*partcatalog.Catalog, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}
	cols := getColumnIndexes(values[0])
	if cols.partNumber < 0 && cols.url < 0 {
		return nil, fmt.Errorf("%w: no \"Part #\" or \"URL\" column", ErrNoData)
	}

	catalog := partcatalog.NewCatalog()
	for _, row := range values[1:] {
		cell := func(index int) string {
			if index < 0 || index >= len(row) {
				return ""
			}
			return strings.TrimSpace(fmt.Sprint(row[index]))
		}
		part := &partcatalog.Part{
			PartNumber: cell(cols.partNumber),
			URL:        cell(cols.url),
			Name:       cell(cols.name),
			Category:   cell(cols.section),
			Brand:      partcatalog.CanonicalBrand(cell(cols.brand)),
			Notes:      cell(cols.notes),
		}
		if part.PartNumber == "" && part.URL == "" {
			continue
		}
		part.Discontinued = strings.EqualFold(cell(cols.status), "Discontinued")
		catalog.Add(part, partcatalog.SkipIfExists)
	}
	return catalog, nil
}

// Retrieve a token, saves the token, then returns the generated client.
func getClient(ctx context.Context, config *oauth2.Config, cfg SheetConfig) (*http.Client, error) {
	// The token file stores the user's access and refresh tokens, and is
	// created automatically when the authorization flow completes for the first
	// time.
	tokFile := cfg.TokenFile
	if tokFile == "" {
		tokFile = "token.json"
	}
	tok, err := tokenFromFile(tokFile)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, config, cfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// Request a token from the web, then returns the retrieved token.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, cfg SheetConfig) (*oauth2.Token, error) {
	in, out := cfg.Prompt, cfg.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
