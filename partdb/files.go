// Package partdb reads and writes the parts database in every format the site
// pipeline has produced over time: JSON arrays, JSON Lines scrape logs, and the
// JavaScript file that embeds `const partDatabase = [...]` for the front end.
package partdb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/heavyparts/parts_site_builder/partcatalog"
)

var (
	// ErrUnknownFormat is returned for a file extension we do not know how to read
	ErrUnknownFormat = errors.New("unknown database format")
	// ErrNoDatabaseLiteral is returned when a .js file has no partDatabase array
	ErrNoDatabaseLiteral = errors.New("no partDatabase array literal found")
)

// Format of a database file
type Format int

const (
	FormatJSON Format = iota
	FormatJSONL
	FormatJS
)

// DetectFormat picks the format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".jl", ".ndjson":
		return FormatJSONL, nil
	case ".js":
		return FormatJS, nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// LoadStats reports what happened while reading a file
type LoadStats struct {
	Lines   int
	Records int
	Invalid int
}

// Load reads a whole database file, whatever the format
func Load(path string) ([]partcatalog.Part, LoadStats, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, LoadStats{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadStats{}, err
	}
	switch format {
	case FormatJSONL:
		return ReadJSONL(bytes.NewReader(data))
	case FormatJS:
		literal, err := ExtractJSArray(string(data), "partDatabase")
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("%s: %w", path, err)
		}
		data = []byte(literal)
	}
	var parts []partcatalog.Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, LoadStats{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return parts, LoadStats{Records: len(parts)}, nil
}

// ReadJSONL reads one record per line, skipping blank and corrupt lines
func ReadJSONL(r io.Reader) ([]partcatalog.Part, LoadStats, error) {
	var stats LoadStats
	var parts []partcatalog.Part
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 20*1024*1024)
	for sc.Scan() {
		stats.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var part partcatalog.Part
		if err := json.Unmarshal(line, &part); err != nil {
			stats.Invalid++
			continue
		}
		parts = append(parts, part)
	}
	stats.Records = len(parts)
	return parts, stats, sc.Err()
}

// Save rewrites the whole database file. The file is written next to the target
// and renamed into place so a crash never leaves half a database behind.
func Save(path string, parts []partcatalog.Part) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		for i := range parts {
			if err := enc.Encode(&parts[i]); err != nil {
				return fmt.Errorf("encode %s: %w", parts[i].PartNumber, err)
			}
		}
	case FormatJSON, FormatJS:
		if parts == nil {
			parts = []partcatalog.Part{}
		}
		data, err := marshalIndent(parts)
		if err != nil {
			return err
		}
		if format == FormatJS {
			buf.WriteString("const partDatabase = ")
			buf.Write(data)
			buf.WriteString(";\n")
		} else {
			buf.Write(data)
			buf.WriteByte('\n')
		}
	}
	return WriteFileAtomic(path, buf.Bytes(), 0o644)
}

func marshalIndent(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteFileAtomic writes through a temp file in the same directory and renames it over path
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ExtractJSArray finds `<name> = [ ... ]` in a JavaScript source and returns the array
// literal cleaned up so encoding/json accepts it. Brackets inside string literals are skipped,
// and trailing commas before a closing bracket or brace are removed.
func ExtractJSArray(src string, name string) (string, error) {
	pos := strings.Index(src, name)
	for pos >= 0 {
		rest := strings.TrimLeft(src[pos+len(name):], " \t\r\n")
		if strings.HasPrefix(rest, "=") {
			rest = strings.TrimLeft(rest[1:], " \t\r\n")
			if strings.HasPrefix(rest, "[") {
				end, err := matchBracket(rest)
				if err != nil {
					return "", err
				}
				return stripTrailingCommas(rest[:end+1]), nil
			}
		}
		next := strings.Index(src[pos+len(name):], name)
		if next < 0 {
			break
		}
		pos += len(name) + next
	}
	return "", ErrNoDatabaseLiteral
}

// matchBracket returns the index of the bracket closing s[0]
func matchBracket(s string) (int, error) {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated array literal: %w", ErrNoDatabaseLiteral)
}

func stripTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
