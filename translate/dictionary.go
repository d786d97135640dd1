// Package translate publishes the English pages of the site in other languages
// from hand-written dictionaries, and keeps the hreflang links of every page in step.
package translate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heavyparts/parts_site_builder/render"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrBadDictionary is returned for dictionaries without a usable language
var ErrBadDictionary = errors.New("bad dictionary")

// Entry is one English phrase and its translation
type Entry struct {
	EN   string `yaml:"en"`
	Text string `yaml:"text"`
}

// Dictionary holds the phrases for one language
type Dictionary struct {
	Lang    string  `yaml:"lang"`
	Dir     string  `yaml:"dir"`
	Entries []Entry `yaml:"entries"`
}

// LoadDictionary reads a YAML dictionary
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	dict, err := ParseDictionary(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dict, nil
}

// ParseDictionary decodes a dictionary, canonicalises its language tag and fills in the text direction
func ParseDictionary(data []byte) (*Dictionary, error) {
	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	tag, err := language.Parse(strings.TrimSpace(dict.Lang))
	if err != nil {
		return nil, fmt.Errorf("%w: language %q: %v", ErrBadDictionary, dict.Lang, err)
	}
	dict.Lang = tag.String()
	switch dict.Dir {
	case "":
		dict.Dir = render.TextDirection(dict.Lang)
	case "ltr", "rtl":
	default:
		return nil, fmt.Errorf("%w: dir %q", ErrBadDictionary, dict.Dir)
	}
	return &dict, nil
}

// LoadDictionaries reads every .yaml and .yml file of dir, ordered by language
func LoadDictionaries(dir string) ([]*Dictionary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dictionaries: %w", err)
	}
	var dicts []*Dictionary
	seen := map[string]string{}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		dict, err := LoadDictionary(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if other, dup := seen[dict.Lang]; dup {
			return nil, fmt.Errorf("%w: %s and %s are both %s", ErrBadDictionary, other, entry.Name(), dict.Lang)
		}
		seen[dict.Lang] = entry.Name()
		dicts = append(dicts, dict)
	}
	sort.Slice(dicts, func(i, j int) bool { return dicts[i].Lang < dicts[j].Lang })
	return dicts, nil
}

// Replacer replaces every entry in one pass. Longer phrases are tried first so
// "Fuel filter" wins over "Fuel", and translated text is never translated again.
func (dict *Dictionary) Replacer() *strings.Replacer {
	entries := make([]Entry, 0, len(dict.Entries))
	for _, entry := range dict.Entries {
		if entry.EN != "" {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].EN) != len(entries[j].EN) {
			return len(entries[i].EN) > len(entries[j].EN)
		}
		return entries[i].EN < entries[j].EN
	})
	pairs := make([]string, 0, 2*len(entries))
	for _, entry := range entries {
		pairs = append(pairs, entry.EN, entry.Text)
	}
	return strings.NewReplacer(pairs...)
}
