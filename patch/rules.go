// Package patch repairs pages that are already on disk: regex rules for text level defects
// and DOM fixes for the structured ones, applied only where they change something.
package patch

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBadRule is returned for rules that have no name or no pattern
var ErrBadRule = errors.New("bad patch rule")

// Rule is one find and replace. Guard, when set, is a substring the page must contain
// before the pattern is even tried.
type Rule struct {
	Name    string `yaml:"name"`
	Guard   string `yaml:"guard"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

// Compile checks the rule and prepares its pattern
func (rule *Rule) Compile() error {
	if strings.TrimSpace(rule.Name) == "" || rule.Pattern == "" {
		return fmt.Errorf("%w: %q", ErrBadRule, rule.Name)
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrBadRule, rule.Name, err)
	}
	rule.re = re
	return nil
}

// Apply runs the rule over content and reports whether anything changed
func (rule *Rule) Apply(content string) (string, bool, error) {
	if rule.re == nil {
		if err := rule.Compile(); err != nil {
			return content, false, err
		}
	}
	if rule.Guard != "" && !strings.Contains(content, rule.Guard) {
		return content, false, nil
	}
	result := rule.re.ReplaceAllString(content, rule.Replace)
	return result, result != content, nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML file holding a list of rules under "rules"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules is LoadRules on bytes
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse patch rules: %w", err)
	}
	for i := range file.Rules {
		if err := file.Rules[i].Compile(); err != nil {
			return nil, err
		}
	}
	return file.Rules, nil
}

// Built-in rule names
const (
	CanonicalDomain      = "canonical-domain"
	EmptyPartPlaceholder = "empty-part-placeholder"
	MalformedMetaClose   = "malformed-meta-close"
)

// BuiltinRules returns the rules for the defects earlier generators left behind.
// The canonical-domain rule is only included when there are legacy domains to move away from.
func BuiltinRules(baseURL string, legacyDomains []string) []Rule {
	var rules []Rule
	if len(legacyDomains) > 0 && baseURL != "" {
		quoted := make([]string, 0, len(legacyDomains))
		for _, domain := range legacyDomains {
			domain = strings.TrimSpace(domain)
			domain = strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
			domain = strings.TrimPrefix(strings.TrimRight(domain, "/"), "www.")
			if domain != "" {
				quoted = append(quoted, regexp.QuoteMeta(domain))
			}
		}
		if len(quoted) > 0 {
			rules = append(rules, Rule{
				Name:    CanonicalDomain,
				Pattern: `https?://(?:www\.)?(?:` + strings.Join(quoted, "|") + `)/?`,
				Replace: strings.ReplaceAll(strings.TrimRight(baseURL, "/")+"/", "$", "$$"),
			})
		}
	}
	rules = append(rules,
		// "Volvo gear set (part="")" left behind when a record had no part number
		Rule{Name: EmptyPartPlaceholder, Guard: `(part=""`, Pattern: `\s*\(part=""\)`, Replace: ""},
		// <meta content="...">"> where the template closed the tag twice
		Rule{Name: MalformedMetaClose, Guard: `<meta`, Pattern: `(<meta\b[^<>]*?")\s*/?>\s*"+>`, Replace: "${1}>"},
	)
	for i := range rules {
		if err := rules[i].Compile(); err != nil {
			panic(err)
		}
	}
	return rules
}
