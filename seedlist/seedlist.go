// Package seedlist reads what the spider should start from: a plain text list of
// URLs and part numbers, or the curated reference spreadsheet on Google Sheets.
package seedlist

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// Read parses one entry per line. Blank lines and lines starting with # are ignored,
// as is anything after a # on a line.
func Read(r io.Reader) ([]string, error) {
	var entries []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if pos := strings.Index(line, "#"); pos >= 0 {
			line = line[:pos]
		}
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read seed list: %w", err)
	}
	return entries, nil
}

// ReadFile is Read on a file
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed list: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// IsURL reports whether an entry is an absolute http(s) URL rather than a part number
func IsURL(entry string) bool {
	u, err := url.Parse(entry)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ToURLs turns part numbers into search pages using searchURL, URLs pass through
func ToURLs(entries []string, searchURL func(partNumber string) string) []string {
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		if IsURL(entry) {
			result = append(result, entry)
		} else if searchURL != nil {
			result = append(result, searchURL(entry))
		}
	}
	return result
}
