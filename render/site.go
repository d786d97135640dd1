package render

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/partdb"
	"github.com/heavyparts/parts_site_builder/transform"
	"github.com/rs/zerolog"
)

// BuildStats counts what a site build wrote
type BuildStats struct {
	Parts      int
	Archetype  int // part pages rendered into an archetype
	Categories int
	Intercepts int
	Failed     int // parts that could not be rendered, logged and skipped
	Written    []string
}

// Site writes the generated pages under Root
type Site struct {
	Root       string
	Renderer   *Renderer
	Archetypes *ArchetypeRenderer
	Log        zerolog.Logger
	// Progress is called once per part handled, if set
	Progress func()
}

// Build writes one page per part, one index per brand/category and one intercept page
// per cross reference that is not itself a part of the site. The paths written are
// relative to Root and sorted.
func (s *Site) Build(parts []partcatalog.Part) (BuildStats, error) {
	var stats BuildStats
	catalog := partcatalog.NewCatalogFrom(parts, partcatalog.SkipIfExists)
	indexed := catalog.Parts()
	categories := map[string][]partcatalog.Part{}
	intercepts := map[string]*partcatalog.Part{}
	var interceptOrder []string

	for i := range indexed {
		part := &indexed[i]
		if s.Progress != nil {
			s.Progress()
		}
		page, err := s.renderPart(part, &stats)
		if err != nil {
			stats.Failed++
			s.Log.Warn().Err(err).Str("part_number", part.PartNumber).Msg("render failed")
			continue
		}
		if err := s.write(transform.PartPath(part), page, &stats); err != nil {
			return stats, err
		}
		stats.Parts++

		category := CategoryPath(part)
		categories[category] = append(categories[category], *part)

		for _, ref := range part.CrossReferences {
			key := partcatalog.NormalizePartNumber(ref)
			if key == "" {
				continue
			}
			if _, own := catalog.Lookup(ref); own {
				continue
			}
			if _, taken := intercepts[key]; taken {
				continue
			}
			intercepts[key] = part
			interceptOrder = append(interceptOrder, ref)
		}
	}
	if len(catalog.Unindexed) > 0 {
		s.Log.Warn().Int("count", len(catalog.Unindexed)).Msg("parts without a part number were not rendered")
	}

	categoryPaths := make([]string, 0, len(categories))
	for rel := range categories {
		categoryPaths = append(categoryPaths, rel)
	}
	sort.Strings(categoryPaths)
	for _, rel := range categoryPaths {
		members := categories[rel]
		page, err := s.Renderer.RenderCategory(members[0].Brand, members[0].Category, members)
		if err != nil {
			return stats, err
		}
		if err := s.write(rel, page, &stats); err != nil {
			return stats, err
		}
		stats.Categories++
	}

	for _, ref := range interceptOrder {
		target := intercepts[partcatalog.NormalizePartNumber(ref)]
		page, err := s.Renderer.RenderIntercept(ref, target)
		if err != nil {
			stats.Failed++
			s.Log.Warn().Err(err).Str("part_number", ref).Msg("intercept page failed")
			continue
		}
		if err := s.write(InterceptPath(ref), page, &stats); err != nil {
			return stats, err
		}
		stats.Intercepts++
	}

	sort.Strings(stats.Written)
	return stats, nil
}

func (s *Site) renderPart(part *partcatalog.Part, stats *BuildStats) ([]byte, error) {
	if s.Archetypes != nil {
		if archetype, found := s.Archetypes.Lookup(part); found {
			page, unmatched, err := s.Archetypes.RenderPart(archetype, part)
			if err != nil {
				return nil, err
			}
			if len(unmatched) > 0 {
				s.Log.Warn().Str("archetype", archetype.Name).Str("part_number", part.PartNumber).
					Strs("unmatched", unmatched).Msg("archetype placeholders missing")
			}
			stats.Archetype++
			return page, nil
		}
	}
	return s.Renderer.RenderPart(part)
}

func (s *Site) write(rel string, page []byte, stats *BuildStats) error {
	target := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := partdb.WriteFileAtomic(target, page, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	s.Log.Debug().Str("path", rel).Msg("page written")
	stats.Written = append(stats.Written, rel)
	return nil
}

func sortParts(parts []partcatalog.Part) {
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].Key() < parts[j].Key()
	})
}
