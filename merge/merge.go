// Package merge combines two parts databases into one, keyed by normalized part number.
package merge

import (
	"github.com/heavyparts/parts_site_builder/partcatalog"
)

// Options controls how incoming records are folded into the base
type Options struct {
	// What happens when an incoming part is already in the base
	Policy partcatalog.DuplicatePolicy
	// Provenance tags for records that do not have one yet
	BaseOrigin     string
	IncomingOrigin string
}

// Stats counts what a merge did
type Stats struct {
	Base         int // records read from base
	Incoming     int // records read from incoming
	Added        int
	Replaced     int
	Skipped      int // duplicates dropped by the policy, within or across inputs
	DroppedNoKey int // records without a part number
}

// Merge returns base followed by the new parts from incoming.  No two records of
// the result share a normalized part number, whatever the inputs contain.
func Merge(base []partcatalog.Part, incoming []partcatalog.Part, opts Options) ([]partcatalog.Part, Stats) {
	stats := Stats{Base: len(base), Incoming: len(incoming)}
	catalog := partcatalog.NewCatalog()

	for i := range base {
		part := base[i]
		if part.Origin == "" {
			part.Origin = opts.BaseOrigin
		}
		if part.Key() == "" {
			stats.DroppedNoKey++
			continue
		}
		// Repeats inside the base always keep the first record
		if !catalog.Add(&part, partcatalog.SkipIfExists) {
			stats.Skipped++
		}
	}

	for i := range incoming {
		part := incoming[i]
		if part.Origin == "" {
			part.Origin = opts.IncomingOrigin
		}
		if part.Key() == "" {
			stats.DroppedNoKey++
			continue
		}
		_, exists := catalog.Lookup(part.PartNumber)
		if !catalog.Add(&part, opts.Policy) {
			stats.Skipped++
			continue
		}
		if exists {
			stats.Replaced++
		} else {
			stats.Added++
		}
	}
	return catalog.Parts(), stats
}

// Duplicates lists the normalized part numbers that occur more than once
func Duplicates(parts []partcatalog.Part) []string {
	counts := map[string]int{}
	var result []string
	for i := range parts {
		key := parts[i].Key()
		if key == "" {
			continue
		}
		counts[key]++
		if counts[key] == 2 {
			result = append(result, key)
		}
	}
	return result
}
