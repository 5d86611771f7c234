package semantic

import "sort"

type Blueprint struct {
	EntryPoints    []Concept           `json:"entry_points"`
	KeyDirectories []Concept           `json:"key_directories"`
	Concepts       []Concept           `json:"concepts"`
	Relationships  []Relationship      `json:"relationships"`
	Roles          map[Role][]string   `json:"roles,omitempty"`
	ConceptCounts  map[ConceptType]int `json:"concept_counts"`
}

// GenerateBlueprint reduces a concept set to the project overview. It reads
// nothing but set, so repeated calls on the same set return equal values.
func GenerateBlueprint(set ConceptSet) Blueprint {
	bp := Blueprint{
		Concepts:      append([]Concept(nil), set.Concepts...),
		Relationships: append([]Relationship(nil), set.Relationships...),
		Roles:         make(map[Role][]string),
		ConceptCounts: make(map[ConceptType]int),
	}
	sortConcepts(bp.Concepts)
	sortRelationships(bp.Relationships)

	for _, c := range bp.Concepts {
		bp.ConceptCounts[c.Type]++
		switch c.Type {
		case ConceptEntryPoint:
			bp.EntryPoints = append(bp.EntryPoints, c)
		case ConceptKeyDirectory:
			bp.KeyDirectories = append(bp.KeyDirectories, c)
		case ConceptRole:
			if len(c.Locations) > 0 {
				bp.Roles[c.Role] = append(bp.Roles[c.Role], c.Locations[0].Path)
			}
		case ConceptDomain, ConceptPatternUsage:
		}
	}

	sort.SliceStable(bp.KeyDirectories, func(i, j int) bool {
		a, b := bp.KeyDirectories[i], bp.KeyDirectories[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Name < b.Name
	})
	for role := range bp.Roles {
		sort.Strings(bp.Roles[role])
	}
	return bp
}
