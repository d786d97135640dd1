package patch

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/jsonld"
	"github.com/heavyparts/parts_site_builder/partdb"
)

// FileReport tells what happened to one page
type FileReport struct {
	Path    string   // relative to the root, slash separated
	Applied []string // names of the rules and fixes that changed the page
	Changed bool
	Err     error
}

// Report covers a whole patch run
type Report struct {
	Scanned int
	Changed int
	Failed  int
	Files   []FileReport // only pages that changed or failed
}

// Counts returns how many pages each rule or fix changed
func (report *Report) Counts() map[string]int {
	counts := map[string]int{}
	for _, file := range report.Files {
		for _, name := range file.Applied {
			counts[name]++
		}
	}
	return counts
}

// Patcher applies rules and DOM fixes to pages
type Patcher struct {
	Rules  []Rule
	Fixes  []DOMFix
	DryRun bool // report what would change without writing
}

// Apply patches every page below root whose path matches glob, see Match.
// A page is written back only when its content changed.
func Apply(root, glob string, rules []Rule, fixes ...DOMFix) (Report, error) {
	p := &Patcher{Rules: rules, Fixes: fixes}
	return p.Apply(root, glob)
}

// Apply walks root and patches the matching pages
func (p *Patcher) Apply(root, glob string) (Report, error) {
	var report Report
	files, err := Pages(root, glob)
	if err != nil {
		return report, err
	}
	for _, rel := range files {
		report.Scanned++
		file := p.patchFile(filepath.Join(root, filepath.FromSlash(rel)))
		file.Path = rel
		if file.Err != nil {
			report.Failed++
			report.Files = append(report.Files, file)
			continue
		}
		if file.Changed {
			report.Changed++
			report.Files = append(report.Files, file)
		}
	}
	return report, nil
}

func (p *Patcher) patchFile(filename string) (report FileReport) {
	info, err := os.Stat(filename)
	if err != nil {
		report.Err = err
		return report
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		report.Err = err
		return report
	}
	patched, applied, err := p.Patch(string(data))
	if err != nil {
		report.Err = err
		return report
	}
	report.Applied = applied
	if patched == string(data) {
		return report
	}
	report.Changed = true
	if p.DryRun {
		return report
	}
	if err := partdb.WriteFileAtomic(filename, []byte(patched), info.Mode().Perm()); err != nil {
		report.Err = fmt.Errorf("write %s: %w", filename, err)
	}
	return report
}

// Patch runs the rules and then the DOM fixes over one page.
// The page is only re-serialised when a DOM fix changed it.
func (p *Patcher) Patch(content string) (string, []string, error) {
	var applied []string
	for i := range p.Rules {
		result, changed, err := p.Rules[i].Apply(content)
		if err != nil {
			return content, applied, err
		}
		if changed {
			applied = append(applied, p.Rules[i].Name)
			content = result
		}
	}
	if len(p.Fixes) == 0 {
		return content, applied, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content, applied, fmt.Errorf("parse page: %w", err)
	}
	domChanged := false
	for _, fix := range p.Fixes {
		if fix.Fix(doc) {
			applied = append(applied, fix.Name)
			domChanged = true
		}
	}
	if !domChanged {
		return content, applied, nil
	}
	html, err := doc.Html()
	if err != nil {
		return content, applied, fmt.Errorf("serialize page: %w", err)
	}
	return html, applied, nil
}

// Match reports whether a slash separated path relative to the root matches glob.
// A glob without a slash is matched against the file name only, so "*.html" covers the tree.
func Match(glob, rel string) bool {
	if glob == "" {
		glob = "*.html"
	}
	target := rel
	if !strings.Contains(glob, "/") {
		target = path.Base(rel)
	}
	ok, err := path.Match(glob, target)
	return err == nil && ok
}

// Pages lists the pages below root matching glob, relative and sorted
func Pages(root, glob string) ([]string, error) {
	if _, err := path.Match(glob, ""); err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", glob, err)
	}
	var files []string
	err := filepath.WalkDir(root, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if filename != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, filename)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Match(glob, rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Problem is a JSON-LD block that does not parse
type Problem struct {
	Path  string
	Block int // position of the block in the page, from 0
	Err   error
}

func (problem Problem) String() string {
	return fmt.Sprintf("%s block %d: %v", problem.Path, problem.Block, problem.Err)
}

// ValidateJSONLD checks every JSON-LD block of every html page below root
func ValidateJSONLD(root string) ([]Problem, int, error) {
	files, err := Pages(root, "*.html")
	if err != nil {
		return nil, 0, err
	}
	var problems []Problem
	blocks := 0
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return problems, blocks, err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			problems = append(problems, Problem{Path: rel, Block: -1, Err: err})
			continue
		}
		doc.Find(ldSelector).Each(func(i int, s *goquery.Selection) {
			blocks++
			if err := jsonld.Validate([]byte(s.Text())); err != nil {
				problems = append(problems, Problem{Path: rel, Block: i, Err: err})
			}
		})
	}
	return problems, blocks, nil
}
