package partcatalog

import (
	"strings"
	"sync"
)

// DuplicatePolicy decides what happens when a part number is already in the catalog
type DuplicatePolicy int

const (
	// LastWriteWins replaces the stored record with the new one
	LastWriteWins DuplicatePolicy = iota
	// SkipIfExists keeps the stored record and drops the new one
	SkipIfExists
)

func (policy DuplicatePolicy) String() string {
	if policy == SkipIfExists {
		return "skip-if-exists"
	}
	return "last-write-wins"
}

// ParseDuplicatePolicy maps the command line spelling onto a policy
func ParseDuplicatePolicy(s string) (DuplicatePolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-write-wins", "last", "replace":
		return LastWriteWins, true
	case "skip-if-exists", "skip", "first":
		return SkipIfExists, true
	}
	return LastWriteWins, false
}

// Catalog - collection of parts indexed by normalized part number and by url
type Catalog struct {
	Mu sync.Mutex

	order      []string
	partNumber map[string]*Part
	url        map[string]*Part

	// Unindexed holds the records without a part number. They are never indexed
	Unindexed []*Part
}

// NewCatalog - constructor
func NewCatalog() *Catalog {
	return &Catalog{
		partNumber: make(map[string]*Part),
		url:        make(map[string]*Part),
	}
}

// NewCatalogFrom builds a catalog from a slice of parts
func NewCatalogFrom(parts []Part, policy DuplicatePolicy) *Catalog {
	catalog := NewCatalog()
	for i := range parts {
		part := parts[i]
		catalog.Add(&part, policy)
	}
	return catalog
}

// Add stores the part under its normalized part number and reports whether it was stored
func (catalog *Catalog) Add(part *Part, policy DuplicatePolicy) bool {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()

	key := part.Key()
	if key == "" {
		catalog.Unindexed = append(catalog.Unindexed, part)
		return false
	}
	if dup, found := catalog.partNumber[key]; found {
		if policy == SkipIfExists {
			return false
		}
		if dup.URL != "" && catalog.url[dup.URL] == dup {
			delete(catalog.url, dup.URL)
		}
	} else {
		catalog.order = append(catalog.order, key)
	}
	catalog.partNumber[key] = part
	if part.URL != "" {
		catalog.url[part.URL] = part
	}
	return true
}

// Lookup finds a part by any spelling of its part number
func (catalog *Catalog) Lookup(pn string) (*Part, bool) {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	part, found := catalog.partNumber[NormalizePartNumber(pn)]
	return part, found
}

// LookupURL finds a part by the page it was scraped from
func (catalog *Catalog) LookupURL(url string) (*Part, bool) {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	part, found := catalog.url[url]
	return part, found
}

// Len returns the number of indexed parts
func (catalog *Catalog) Len() int {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	return len(catalog.order)
}

// Parts returns the indexed parts in first-insertion order
func (catalog *Catalog) Parts() []Part {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	result := make([]Part, 0, len(catalog.order))
	for _, key := range catalog.order {
		result = append(result, *catalog.partNumber[key])
	}
	return result
}

// CheckMatch compares a freshly scraped part to what is already in the catalog.
// Any differences are put into the notes and the SpiderStatus tells what happened.
// Matched catalog entries are marked so that Missing does not report them.
func (catalog *Catalog) CheckMatch(found *Part) {
	entry, matched := catalog.Lookup(found.PartNumber)
	if !matched && found.URL != "" {
		entry, matched = catalog.LookupURL(found.URL)
	}
	if !matched {
		found.SpiderStatus = NewPart
		return
	}

	extra := ""
	separator := ", "
	// We are gathering everything in the notes section, we need to use the comma between entries just to make it easy
	if found.Notes != "" {
		extra = separator
	}
	if entry.Notes != "" && !strings.Contains(found.Notes, entry.Notes) {
		found.Notes += extra + entry.Notes
		extra = separator
	}
	found.SpiderStatus = UnchangedPart

	// If the category moved on the website we keep the curated one and record the new one
	if found.Category != "" && entry.Category != "" && !strings.EqualFold(found.Category, entry.Category) {
		newCategory := strings.TrimSpace(strings.ReplaceAll(found.Category, "\u00A0", " "))
		if !strings.EqualFold(newCategory, entry.Category) {
			found.SpiderStatus = PartChanged
			found.Notes += extra + "New Section:" + newCategory
			extra = separator
		}
		found.Category = entry.Category
	}
	// Likewise a renamed product keeps the curated name
	if found.Name != "" && entry.Name != "" && !strings.EqualFold(found.Name, entry.Name) {
		newName := strings.Join(strings.Fields(found.Name), " ")
		oldName := strings.Join(strings.Fields(entry.Name), " ")
		if !strings.EqualFold(newName, oldName) {
			found.SpiderStatus = PartChanged
			found.Notes += extra + "New Name:" + newName
			extra = separator
		}
		found.Name = entry.Name
	}
	// A different spelling of the part number is worth knowing about
	if !strings.EqualFold(found.PartNumber, entry.PartNumber) && NormalizePartNumber(found.PartNumber) != NormalizePartNumber(entry.PartNumber) {
		found.SpiderStatus = PartChanged
		found.Notes += extra + "Old Part #:" + entry.PartNumber
		extra = separator
	}
	// The URL changes are taken, but we stash the old one
	if entry.URL != "" && !strings.EqualFold(found.URL, entry.URL) {
		newURL, _ := cleanURL(found.URL)
		oldURL, _ := cleanURL(entry.URL)
		if !strings.EqualFold(newURL, oldURL) {
			found.SpiderStatus = PartChanged
			found.Notes += extra + "Old URL:" + entry.URL
		}
	}
	if found.Discontinued && !entry.Discontinued {
		found.SpiderStatus = DiscontinuedPart
	}
	// Prevent us from reporting the same entry as missing
	catalog.Mu.Lock()
	entry.SpiderStatus = found.SpiderStatus
	catalog.Mu.Unlock()
}

// Missing returns the catalog entries the spider never matched
func (catalog *Catalog) Missing() []*Part {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	var result []*Part
	for _, key := range catalog.order {
		part := catalog.partNumber[key]
		if part.SpiderStatus == PartNotFoundBySpider {
			result = append(result, part)
		}
	}
	return result
}

// ResetSpiderStatus marks every entry as not found (or discontinued) ahead of a crawl
func (catalog *Catalog) ResetSpiderStatus() {
	catalog.Mu.Lock()
	defer catalog.Mu.Unlock()
	for _, part := range catalog.partNumber {
		if part.Discontinued {
			part.SpiderStatus = DiscontinuedPart
		} else {
			part.SpiderStatus = PartNotFoundBySpider
		}
	}
}

// cleanURL removes any query from a URL returning the cleaned string and an indication that it was removed
func cleanURL(url string) (result string, stripped bool) {
	pos := strings.Index(url, "?")
	if pos > 0 { // note > and not >= because we don't want to get an empty URL
		return url[:pos], true
	}
	return url, false
}
