// Package semantic derives higher-level concepts (entry points, key
// directories, domain vocabulary, architectural roles and pattern usage)
// from extraction facts and assembles them into a project blueprint.
package semantic

import (
	"sort"

	codeerrors "codeintel/internal/core/errors"
)

type ConceptType string

const (
	ConceptEntryPoint   ConceptType = "entry-point"
	ConceptKeyDirectory ConceptType = "key-directory"
	ConceptDomain       ConceptType = "domain-concept"
	ConceptRole         ConceptType = "architectural-role"
	ConceptPatternUsage ConceptType = "pattern-usage"
)

type RelationType string

const (
	RelLocatedIn RelationType = "located_in"
	RelAppearsIn RelationType = "appears_in"
	RelUsedIn    RelationType = "used_in"
)

type Location struct {
	Path   string `json:"path"`
	Symbol string `json:"symbol,omitempty"`
	Line   int    `json:"line,omitempty"`
}

type DirectoryStats struct {
	Files   int     `json:"files"`
	Symbols int     `json:"symbols"`
	FanIn   int     `json:"fan_in"`
	Density float64 `json:"density"`
	Role    Role    `json:"role,omitempty"`
}

type Concept struct {
	ID          string          `json:"id"`
	Type        ConceptType     `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Locations   []Location      `json:"locations,omitempty"`
	Score       float64         `json:"score"`
	Directory   *DirectoryStats `json:"directory,omitempty"`
	Role        Role            `json:"role,omitempty"`
}

// Text is the searchable rendering of a concept.
func (c Concept) Text() string {
	return c.Name + " " + c.Description
}

type Relationship struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Type   RelationType `json:"type"`
}

// ConceptSet is the output of one extraction: concepts sorted by id and
// relationships sorted by source, type and target.
type ConceptSet struct {
	Concepts      []Concept      `json:"concepts"`
	Relationships []Relationship `json:"relationships"`
}

func (s ConceptSet) Concept(id string) (Concept, bool) {
	i := sort.Search(len(s.Concepts), func(i int) bool { return s.Concepts[i].ID >= id })
	if i < len(s.Concepts) && s.Concepts[i].ID == id {
		return s.Concepts[i], true
	}
	return Concept{}, false
}

// ConceptsForPath returns the ids of concepts with a location in path.
func (s ConceptSet) ConceptsForPath(p string) []string {
	var ids []string
	for _, c := range s.Concepts {
		for _, loc := range c.Locations {
			if loc.Path == p {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids
}

// Validate checks id uniqueness and that every relationship endpoint names
// a concept in the set.
func (s ConceptSet) Validate() error {
	seen := make(map[string]bool, len(s.Concepts))
	for _, c := range s.Concepts {
		if c.ID == "" {
			return codeerrors.New(codeerrors.CodeValidationError, "concept id is empty")
		}
		if seen[c.ID] {
			return codeerrors.AddContext(
				codeerrors.Newf(codeerrors.CodeValidationError, "duplicate concept id %q", c.ID), codeerrors.CtxEntity, c.ID)
		}
		seen[c.ID] = true
	}
	for _, r := range s.Relationships {
		for _, id := range []string{r.Source, r.Target} {
			if !seen[id] {
				return codeerrors.AddContext(
					codeerrors.Newf(codeerrors.CodeInvalidReference, "%s relationship references unknown concept %q", r.Type, id),
					codeerrors.CtxEntity, id)
			}
		}
	}
	return nil
}

func sortConcepts(cs []Concept) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}

func sortRelationships(rs []Relationship) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Target < b.Target
	})
}
