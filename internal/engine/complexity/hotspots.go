package complexity

import "sort"

type Hotspot struct {
	Path       string  `json:"path"`
	Unit       string  `json:"unit"`
	ID         string  `json:"id"`
	Cyclomatic int     `json:"cyclomatic"`
	Cognitive  int     `json:"cognitive"`
	Index      float64 `json:"maintainability_index"`
	Level      Level   `json:"level"`
}

// TopComplexity returns the n units with the lowest maintainability index,
// ties broken by higher cognitive complexity, then path and unit name.
func TopComplexity(files map[string]FileComplexity, n int) []Hotspot {
	if n <= 0 {
		return nil
	}

	hotspots := make([]Hotspot, 0)
	for _, fc := range files {
		for _, u := range fc.Units {
			hotspots = append(hotspots, Hotspot{
				Path:       u.Path,
				Unit:       u.Name,
				ID:         u.ID,
				Cyclomatic: u.Cyclomatic,
				Cognitive:  u.Cognitive,
				Index:      u.MaintainabilityIndex,
				Level:      u.Level,
			})
		}
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Index == hotspots[j].Index {
			if hotspots[i].Cognitive == hotspots[j].Cognitive {
				if hotspots[i].Path == hotspots[j].Path {
					return hotspots[i].Unit < hotspots[j].Unit
				}
				return hotspots[i].Path < hotspots[j].Path
			}
			return hotspots[i].Cognitive > hotspots[j].Cognitive
		}
		return hotspots[i].Index < hotspots[j].Index
	})

	if len(hotspots) > n {
		return hotspots[:n]
	}
	return hotspots
}
