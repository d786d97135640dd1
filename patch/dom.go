package patch

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/jsonld"
	"golang.org/x/net/html"
)

const ldSelector = `script[type="application/ld+json"]`

// DOM fix names
const (
	DedupeBreadcrumbSchema = "dedupe-breadcrumb-schema"
	RepairJSONLDQuotes     = "repair-jsonld-quotes"
)

// DOMFix changes a parsed page and reports whether it did anything
type DOMFix struct {
	Name string
	Fix  func(doc *goquery.Document) bool
}

// BuiltinFixes returns every DOM fix
func BuiltinFixes() []DOMFix {
	return []DOMFix{
		{Name: RepairJSONLDQuotes, Fix: repairJSONLD},
		{Name: DedupeBreadcrumbSchema, Fix: dedupeBreadcrumbs},
	}
}

// dedupeBreadcrumbs keeps the first BreadcrumbList block of a page
func dedupeBreadcrumbs(doc *goquery.Document) bool {
	changed := false
	seen := false
	doc.Find(ldSelector).Each(func(i int, s *goquery.Selection) {
		isBreadcrumb := false
		for _, typ := range jsonld.Types([]byte(s.Text())) {
			if typ == "BreadcrumbList" {
				isBreadcrumb = true
			}
		}
		if !isBreadcrumb {
			return
		}
		if seen {
			s.Remove()
			changed = true
			return
		}
		seen = true
	})
	return changed
}

// repairJSONLD rewrites blocks that do not parse when escaping their stray quotes fixes them.
// Blocks that still fail are left alone for ValidateJSONLD to report.
func repairJSONLD(doc *goquery.Document) bool {
	changed := false
	doc.Find(ldSelector).Each(func(i int, s *goquery.Selection) {
		text := s.Text()
		if jsonld.Validate([]byte(text)) == nil {
			return
		}
		repaired := RepairQuotes(text)
		if jsonld.Validate([]byte(repaired)) != nil {
			return
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, []byte(repaired)); err == nil {
			repaired = compact.String()
		}
		// Script content is raw text, it must not be entity escaped
		s.Empty().AppendNodes(&html.Node{Type: html.TextNode, Data: repaired})
		changed = true
	})
	return changed
}

// RepairQuotes escapes the double quotes inside JSON strings that were written without escaping,
// like "description": "12" hose". A quote ends a string only when the next non-space character
// can follow a string value. Raw line breaks inside strings are escaped as well.
func RepairQuotes(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 16)
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			sb.WriteByte(c)
		case c == '\\':
			escaped = true
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '"':
			if closesString(text[i+1:]) {
				inString = false
				sb.WriteByte(c)
			} else {
				sb.WriteString(`\"`)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func closesString(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ',':
		// A comma only ends the value when a key or another value follows
		next := strings.TrimLeft(rest[1:], " \t\r\n")
		return next == "" || next[0] == '"' || next[0] == '{' || next[0] == '[' || strings.ContainsRune("-0123456789tfn", rune(next[0]))
	case ':', '}', ']':
		return true
	}
	return false
}
